// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package metric

// Tag constants
const (
	TagEnv             = "env"
	TagService         = "service"
	TagPath            = "path"
	TagMethod          = "method"
	TagHttpStatusCode  = "http_status_code"
	TagExternalService = "external_service"
	TagEnvelopeCode    = "envelope_code"
)

// Tag is a single statsd tag.
type Tag struct {
	Name  string
	Value string
}

func NewTag(name, value string) Tag {
	return Tag{Name: name, Value: value}
}

// TagAsString renders a tag in the name:value form statsd expects.
func TagAsString(name, value string) string {
	return name + ":" + value
}

// BuildTag converts tags to their statsd form.
func BuildTag(tags ...Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagAsString(t.Name, t.Value))
	}
	return out
}
