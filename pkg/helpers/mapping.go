package helpers

import (
	"fmt"
	"strings"

	"github.com/oksasatya/go-ddd-task-sync/pkg/mailer"
	mailtpl "github.com/oksasatya/go-ddd-task-sync/pkg/mailer/templates"
)

// SubjectFor is the fallback subject of a job that carries none.
func SubjectFor(job *mailer.EmailJob) string {
	if s := strings.TrimSpace(job.Subject); s != "" {
		return s
	}
	switch strings.ToLower(job.Template) {
	case mailtpl.TaskAssigned:
		if name := fmt.Sprintf("%v", job.Data["TaskName"]); job.Data["TaskName"] != nil && name != "" {
			return "New task assigned: " + name
		}
		return "New task assigned"
	default:
		return "Notification"
	}
}

// EnsureRecipientAndEmail fills the recipient fields of the template data
// from job.To when the producer left them out.
func EnsureRecipientAndEmail(job *mailer.EmailJob) {
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	if v, ok := job.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["Email"] = job.To
	}
	if v, ok := job.Data["RecipientEmail"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["RecipientEmail"] = job.To
	}
}

// NormalizeTemplate lower-cases the template name so producers may use any
// casing of a known name.
func NormalizeTemplate(job *mailer.EmailJob) {
	job.Template = strings.ToLower(strings.TrimSpace(job.Template))
}
