package persona

import (
	"testing"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemPromptFullPersona(t *testing.T) {
	svc, err := New(models.PersonaConfig{
		Name:      "Dobby",
		Bio:       "A free elf who helps wizards in need.",
		Style:     "earnest, third person",
		Interests: []string{"socks", "freedom"},
	}, utils.NewBufferPool())
	require.NoError(t, err)

	prompt, err := svc.SystemPrompt()
	require.NoError(t, err)

	assert.Contains(t, prompt, "You are Dobby.")
	assert.Contains(t, prompt, "A free elf who helps wizards in need.")
	assert.Contains(t, prompt, "earnest, third person")
	assert.Contains(t, prompt, "socks, freedom")
	assert.Contains(t, prompt, "Stay in character.")
}

func TestSystemPromptOmitsEmptySections(t *testing.T) {
	svc, err := New(models.PersonaConfig{Name: "Dobby"}, utils.NewBufferPool())
	require.NoError(t, err)

	prompt, err := svc.SystemPrompt()
	require.NoError(t, err)

	assert.Contains(t, prompt, "You are Dobby.")
	assert.NotContains(t, prompt, "Speak in this style")
	assert.NotContains(t, prompt, "You care about")
}

func TestSystemMessageRole(t *testing.T) {
	svc, err := New(models.PersonaConfig{Name: "Dobby"}, utils.NewBufferPool())
	require.NoError(t, err)

	msg, err := svc.SystemMessage()
	require.NoError(t, err)
	assert.Equal(t, models.RoleSystem, msg.Role)
	assert.NotEmpty(t, msg.Content)
}
