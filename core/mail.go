package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
	"path"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/gurudigital/pelangi/fs"
)

var ErrUnknownTemplate = errors.New("unknown email template")

var (
	templates       map[string]*emailTemplate
	tmplMu          sync.RWMutex
	frontendBaseURL string
)

type (
	// emailTemplate pairs the text and html renditions of one email. html is optional.
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	// EmailMessage is a templated email: level up notices and password resets.
	EmailMessage struct {
		To           []mail.Address
		Subject      string
		TemplateName string // without ext
		TemplateData interface{}

		// filled in by Render
		TextContent string
		HTMLContent string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render executes the message template into TextContent and HTMLContent.
func (m *EmailMessage) Render() error {
	tmplMu.RLock()
	tmpl, ok := templates[m.TemplateName]
	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	tmplMu.RUnlock()
	if !ok || tmpl.text == nil {
		return errors.Wrap(ErrUnknownTemplate, m.TemplateName)
	}

	var buff bytes.Buffer
	if err := tmpl.text.Execute(&buff, data); err != nil {
		return errors.Wrap(err, "rendering text")
	}
	m.TextContent = buff.String()

	if tmpl.html != nil {
		buff.Reset()
		if err := tmpl.html.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering html")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }

// ParseEmailTemplates parses the embedded email templates once at start up.
// Files starting with "_" are base layouts; only .txt and .gohtml files are considered.
func ParseEmailTemplates(conf *Config, logger Logger) {
	tmplMu.Lock()
	defer tmplMu.Unlock()

	frontendBaseURL = conf.FrontendBaseURL
	templates = make(map[string]*emailTemplate)

	dir := appfs.EmailTemplatesDir
	entries, err := appfs.FS.ReadDir(dir)
	if err != nil {
		logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
		return
	}

	for _, e := range entries {
		fname := e.Name()
		ext := filepath.Ext(fname)
		if e.IsDir() || strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := fname[:strings.LastIndex(fname, ".")]
		entry, ok := templates[name]
		if !ok {
			entry = new(emailTemplate)
			templates[name] = entry
		}
		fp := path.Join(dir, fname)
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(appfs.FS, path.Join(dir, "_base.txt"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fname, err), err)
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.text = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(appfs.FS, path.Join(dir, "_base.gohtml"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fname, err), err)
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.html = tmpl
		}
	}
}
