package mailer

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// A job either carries a ready Subject/Text/HTML, or names a Template that
// the worker renders with Data. Template wins when both are set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // e.g. "task_assigned"
	Data     map[string]any `json:"data,omitempty"`
}

// NewTemplateJob builds a job rendered by the worker from template.
func NewTemplateJob(to, template string, data map[string]any) EmailJob {
	if data == nil {
		data = map[string]any{}
	}
	return EmailJob{To: to, Template: template, Data: data}
}
