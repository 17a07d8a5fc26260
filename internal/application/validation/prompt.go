package validation

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// DefaultSystemInstruction is sent with every AI-reasoning request
const DefaultSystemInstruction = "You are a compliance reviewer for employee expense claims. " +
	"Some deterministic policy checks failed for this claim. Weigh the evidence and decide. " +
	"Always respond with a single valid JSON object and nothing else."

// DefaultUserTemplate renders the claim context handed to the reasoner
const DefaultUserTemplate = `Evaluate the following expense claim against company policy.

Claim:
- ID: {{.Claim.ID}}
- Type: {{.Claim.ClaimType}}
- Category: {{.Claim.CategoryCode}}
- Amount: {{printf "%.2f" .Claim.Amount}} {{.Claim.Currency}}
- Claim date: {{.Claim.ClaimDate.Format "2006-01-02"}} ({{.AgeDays}} days ago)
- Description: {{.Claim.Description}}
- Employee tenure: {{.TenureMonths}} months
- Documents attached: {{.DocumentCount}}

Policy:
{{.PolicyText}}

Rule evidence:
{{range .Evidence}}- {{.RuleID}}: {{if .Passed}}PASS{{else}}FAIL{{end}} ({{.Evidence}})
{{end}}
Failing rules:
{{range .Failed}}- {{.RuleID}}: {{.Evidence}}
{{end}}
Respond with a JSON object only:
{"confidence": <number between 0 and 1>, "recommendation": "APPROVE" | "REVIEW" | "REJECT", "reasoning": "<short explanation>", "justification": "<policy basis for the decision>"}
`

// PromptConfig holds the validation prompts. Empty fields fall back to the defaults.
type PromptConfig struct {
	Validation struct {
		Temperature  *float32 `yaml:"temperature"`
		System       string   `yaml:"system"`
		UserTemplate string   `yaml:"user_template"`
	} `yaml:"validation"`
}

// Prompts is a compiled prompt set
type Prompts struct {
	system      string
	temperature *float32
	user        *template.Template
}

// DefaultPrompts returns the built-in prompt set
func DefaultPrompts() *Prompts {
	return &Prompts{
		system: DefaultSystemInstruction,
		user:   template.Must(template.New("validation").Parse(DefaultUserTemplate)),
	}
}

// LoadPrompts loads prompt overrides from a YAML file
func LoadPrompts(promptsPath string) (*Prompts, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts compiles a YAML prompt document
func ParsePrompts(data []byte) (*Prompts, error) {
	var cfg PromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	p := DefaultPrompts()
	if cfg.Validation.System != "" {
		p.system = cfg.Validation.System
	}
	if cfg.Validation.UserTemplate != "" {
		tmpl, err := template.New("validation").Parse(cfg.Validation.UserTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template: %w", err)
		}
		p.user = tmpl
	}
	p.temperature = cfg.Validation.Temperature
	return p, nil
}

// System returns the system instruction
func (p *Prompts) System() string {
	return p.system
}

func (p *Prompts) render(data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
