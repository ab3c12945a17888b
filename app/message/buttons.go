package message

import (
	"github.com/ibnu-sodik/wage-backend/app/wa"
	"github.com/ibnu-sodik/wage-backend/models"
)

// GroupButtons splits a template's button specs by action type, dropping
// malformed entries whose payload does not match the declared type.
func GroupButtons(specs []models.ButtonSpec) (reply, url, call []models.ButtonSpec) {
	for _, spec := range specs {
		switch spec.Type {
		case "reply":
			if spec.Reply != nil && spec.Reply.Title != "" {
				reply = append(reply, spec)
			}
		case "url":
			if spec.URL != nil && spec.URL.Title != "" && spec.URL.URL != "" {
				url = append(url, spec)
			}
		case "call":
			if spec.Call != nil && spec.Call.Title != "" && spec.Call.PhoneNumber != "" {
				call = append(call, spec)
			}
		}
	}
	return reply, url, call
}

// SelectButtons picks the button group to render. The transport renders a
// single action type per message; reply buttons win over url, url over call.
func SelectButtons(specs []models.ButtonSpec) []models.ButtonSpec {
	reply, url, call := GroupButtons(specs)
	switch {
	case len(reply) > 0:
		return reply
	case len(url) > 0:
		return url
	default:
		return call
	}
}

// ConvertButtons maps the selected specs into indexed transport buttons
func ConvertButtons(specs []models.ButtonSpec) []wa.Button {
	out := make([]wa.Button, 0, len(specs))
	for i, spec := range specs {
		btn := wa.Button{Index: i + 1}
		switch spec.Type {
		case "reply":
			btn.Kind = wa.ButtonReply
			btn.DisplayText = spec.Reply.Title
			btn.ID = spec.Reply.ID
		case "url":
			btn.Kind = wa.ButtonURL
			btn.DisplayText = spec.URL.Title
			btn.URL = spec.URL.URL
		case "call":
			btn.Kind = wa.ButtonCall
			btn.DisplayText = spec.Call.Title
			btn.PhoneNumber = spec.Call.PhoneNumber
		default:
			continue
		}
		out = append(out, btn)
	}
	return out
}
