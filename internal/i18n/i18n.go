// Package i18n renders command descriptions and structured errors in the
// supported locales.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"faultcore/pkg/domain"
)

// BaseLocale is the source locale every catalog falls back to.
const BaseLocale = "en"

// Message keys that are not command descriptions or error codes.
const (
	KeyUnnamedModel = "model.unnamed"
	KeyUndo         = "history.undo"
	KeyRedo         = "history.redo"
	KeyUnsaved      = "history.unsaved"

	KeyXMLElement   = "error.INITIALIZATION.element"
	KeyXMLAttribute = "error.INITIALIZATION.attribute"

	KeyReportProducts    = "report.products"
	KeyReportProbability = "report.probability"
	KeyReportImportance  = "report.importance"
)

//go:embed locales/*.yaml
var embedded embed.FS

// errorArgs lists, per code, the metadata keys substituted into its template.
var errorArgs = map[domain.Code][]string{
	domain.CodeDuplicateName:          {domain.MetaName},
	domain.CodeInvalidName:            {domain.MetaName, domain.MetaReason},
	domain.CodeNotFound:               {domain.MetaKind, domain.MetaName},
	domain.CodeSelfCycle:              {domain.MetaArgument, domain.MetaGate},
	domain.CodeCycle:                  {domain.MetaArgument, domain.MetaGate},
	domain.CodeDuplicateArgument:      {domain.MetaArgument, domain.MetaGate},
	domain.CodeAritySingle:            {domain.MetaGate, domain.MetaConnective},
	domain.CodeArityExactlyTwo:        {domain.MetaGate, domain.MetaConnective},
	domain.CodeArityAtLeast:           {domain.MetaGate, domain.MetaConnective, domain.MetaMin},
	domain.CodeInvalidVoteNumber:      {domain.MetaGate, domain.MetaConnective, domain.MetaMin},
	domain.CodeFaultTreeRedefined:     {domain.MetaFaultTree},
	domain.CodeTopGate:                {domain.MetaFaultTree},
	domain.CodeEventHasDependents:     {domain.MetaName, domain.MetaDependents},
	domain.CodeFaultTreeHasDependents: {domain.MetaFaultTree, domain.MetaRoot, domain.MetaDependents},
	domain.CodeInvalidEvent:           {domain.MetaName, domain.MetaReason},
	domain.CodeInvalidExpression:      {domain.MetaName, domain.MetaReason},
	domain.CodeInitialization:         {domain.MetaFile, domain.MetaLine},
	domain.CodeInvalidSettings:        {domain.MetaReason},
}

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle holds the message catalogs of every supported locale.
type Bundle struct {
	builder  *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
	messages map[string]map[string]string
}

// Load parses the embedded catalogs.
func Load() (*Bundle, error) {
	return LoadFS(embedded, "locales")
}

// LoadFS parses every *.yaml catalog under dir. The base locale must be
// present; it becomes the fallback for missing keys.
func LoadFS(fsys fs.FS, dir string) (*Bundle, error) {
	paths, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, errors.New("no catalog files found")
	}
	sort.Strings(paths)
	base := language.MustParse(BaseLocale)
	b := &Bundle{
		builder:  catalog.NewBuilder(catalog.Fallback(base)),
		messages: make(map[string]map[string]string),
	}
	// The base tag leads so that the matcher falls back to it.
	b.tags = []language.Tag{base}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if want := strings.TrimSuffix(path.Base(p), path.Ext(p)); file.Locale != want {
			return nil, fmt.Errorf("catalog %s: locale %q must match file name", p, file.Locale)
		}
		tag, err := language.Parse(file.Locale)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", p, err)
		}
		if _, dup := b.messages[file.Locale]; dup {
			return nil, fmt.Errorf("catalog %s: locale %q defined twice", p, file.Locale)
		}
		for key, value := range file.Messages {
			if err := b.builder.SetString(tag, key, value); err != nil {
				return nil, fmt.Errorf("catalog %s: key %q: %w", p, key, err)
			}
		}
		b.messages[file.Locale] = file.Messages
		if file.Locale != BaseLocale {
			b.tags = append(b.tags, tag)
		}
	}
	if _, ok := b.messages[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

// Locales returns the supported locale identifiers, base first.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.tags))
	for _, tag := range b.tags {
		out = append(out, tag.String())
	}
	return out
}

// Missing lists keys defined in the base locale but absent from locale.
func (b *Bundle) Missing(locale string) []string {
	target := b.messages[locale]
	var out []string
	for key := range b.messages[BaseLocale] {
		if _, ok := target[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// Localizer returns a printer for the supported locale closest to locale.
func (b *Bundle) Localizer(locale string) *Localizer {
	requested, err := language.Parse(locale)
	if err != nil {
		requested = b.tags[0]
	}
	_, index, _ := b.matcher.Match(requested)
	tag := b.tags[index]
	return &Localizer{tag: tag, printer: message.NewPrinter(tag, message.Catalog(b.builder))}
}

// Localizer renders messages for one locale.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// Locale returns the matched locale.
func (l *Localizer) Locale() string { return l.tag.String() }

// Text renders key with positional arguments.
func (l *Localizer) Text(key string, args ...string) string {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	return l.printer.Sprintf(key, values...)
}

// Message renders a command description.
func (l *Localizer) Message(m domain.Message) string {
	return l.Text(m.Key, m.Args...)
}

// ModelName renders the display name of a model.
func (l *Localizer) ModelName(name string) string {
	if name == "" {
		return l.Text(KeyUnnamedModel)
	}
	return name
}

// Error renders a structured error from its code and metadata. Errors without
// a code fall back to their own text.
func (l *Localizer) Error(err error) string {
	if err == nil {
		return ""
	}
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return err.Error()
	}
	key := "error." + string(derr.Code)
	if derr.Code == domain.CodeInitialization {
		key += "." + derr.Meta(domain.MetaKind)
	}
	keys := errorArgs[derr.Code]
	args := make([]string, len(keys))
	for i, k := range keys {
		args[i] = derr.Meta(k)
	}
	if derr.Code == domain.CodeEventHasDependents || derr.Code == domain.CodeFaultTreeHasDependents {
		last := len(args) - 1
		args[last] = strings.ReplaceAll(args[last], ",", ", ")
	}
	text := l.Text(key, args...)
	if text == key {
		return derr.Error()
	}
	if derr.Code == domain.CodeInitialization {
		if el := derr.Meta(domain.MetaElement); el != "" {
			text += "\n" + l.Text(KeyXMLElement, el)
		}
		if attr := derr.Meta(domain.MetaAttribute); attr != "" {
			text += "\n" + l.Text(KeyXMLAttribute, attr)
		}
	}
	return text
}
