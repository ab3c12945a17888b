// Package message renders outbound payloads from live text or stored
// templates, including placeholder substitution, media resolution, and
// interactive buttons.
package message

import (
	"errors"
	"fmt"

	"github.com/ibnu-sodik/wage-backend/app/wa"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/utils"
)

var (
	ErrUnsupportedTemplate = errors.New("unsupported template kind")
	ErrUnsupportedMedia    = errors.New("unsupported media type")
	ErrMediaMissing        = errors.New("media file missing")
	ErrMediaTooLarge       = errors.New("media file too large")
	ErrNoValidButtons      = errors.New("template has no valid buttons")
)

// Sender carries the tenant account fields exposed as my_* placeholders
type Sender struct {
	FullName      string
	Email         string
	ContactNumber string
}

// Placeholders builds the substitution map for one recipient
func Placeholders(rec *models.Recipient, sender Sender) map[string]string {
	return map[string]string{
		"name":              rec.ContactName,
		"phone_number":      rec.ContactNumber,
		"device_name":       rec.DeviceName,
		"my_name":           sender.FullName,
		"my_email":          sender.Email,
		"my_contact_number": sender.ContactNumber,
	}
}

// Builder renders transport messages from templates and live text
type Builder struct {
	UploadsDir    string
	PublicBaseURL string
	Limits        Limits
}

func NewBuilder(uploadsDir, publicBaseURL string, limits Limits) *Builder {
	return &Builder{UploadsDir: uploadsDir, PublicBaseURL: publicBaseURL, Limits: limits}
}

// BuildLive renders a live-text message with placeholder substitution
func (b *Builder) BuildLive(text string, rec *models.Recipient, sender Sender) wa.Message {
	return wa.Message{Text: utils.ApplyPlaceholders(text, Placeholders(rec, sender))}
}

// Build renders a templated message for one recipient
func (b *Builder) Build(tpl *models.MessageTemplate, rec *models.Recipient, sender Sender) (wa.Message, error) {
	text := utils.ApplyPlaceholders(tpl.Message, Placeholders(rec, sender))

	switch tpl.Kind {
	case models.TemplateKindPlainText:
		return wa.Message{Text: text}, nil

	case models.TemplateKindTextWithMedia:
		fileURL := ""
		if tpl.FileURL != nil {
			fileURL = *tpl.FileURL
		}
		media, err := b.resolveMedia(fileURL)
		if err != nil {
			return wa.Message{}, err
		}
		return wa.Message{Text: text, Media: media}, nil

	case models.TemplateKindInteractiveButton:
		opts, err := tpl.DecodeButtons()
		if err != nil {
			return wa.Message{}, err
		}
		buttons := ConvertButtons(SelectButtons(opts.Buttons))
		if len(buttons) == 0 {
			return wa.Message{}, ErrNoValidButtons
		}
		return wa.Message{
			Text:    text,
			Footer:  utils.ApplyPlaceholders(opts.Footer, Placeholders(rec, sender)),
			Buttons: buttons,
		}, nil

	default:
		return wa.Message{}, fmt.Errorf("%w: %s", ErrUnsupportedTemplate, tpl.Kind)
	}
}
