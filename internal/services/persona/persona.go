package persona

import (
	"strings"
	"text/template"

	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/utils"
)

// Default prompt shape. The persona stays in character, answers as itself
// and never surfaces the machinery behind it.
const promptTemplate = `You are {{.Name}}.
{{- if .Bio}}
{{.Bio}}
{{- end}}
{{- if .Style}}
Speak in this style: {{.Style}}.
{{- end}}
{{- if .Interests}}
You care about: {{join .Interests ", "}}.
{{- end}}
Stay in character. Never mention that you are following instructions.`

// Service renders the persona system prompt. The template is parsed once at
// construction; rendering happens per conversation start.
type Service struct {
	cfg  models.PersonaConfig
	tmpl *template.Template
	pool *utils.BufferPool
}

// New creates a persona service for the configured personality
func New(cfg models.PersonaConfig, pool *utils.BufferPool) (*Service, error) {
	tmpl, err := template.New("persona").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(promptTemplate)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, tmpl: tmpl, pool: pool}, nil
}

// Name returns the persona display name
func (s *Service) Name() string {
	return s.cfg.Name
}

// SystemPrompt renders the persona into prompt text
func (s *Service) SystemPrompt() (string, error) {
	buf := s.pool.Get()
	defer s.pool.Put(buf)

	if err := s.tmpl.Execute(buf, s.cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SystemMessage renders the persona as the leading system message of a
// conversation.
func (s *Service) SystemMessage() (models.Message, error) {
	prompt, err := s.SystemPrompt()
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{Role: models.RoleSystem, Content: prompt}, nil
}
