// Package mef reads and writes the subset of the Open-PSA Model Exchange
// Format that the fault-tree model supports.
package mef

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"faultcore/internal/infra/persistence/memory"
	"faultcore/pkg/domain"
)

// Element names of the supported schema subset.
const (
	elemRoot        = "opsa-mef"
	elemLabel       = "label"
	elemFaultTree   = "define-fault-tree"
	elemModelData   = "model-data"
	elemGate        = "define-gate"
	elemBasicEvent  = "define-basic-event"
	elemHouseEvent  = "define-house-event"
	elemAttributes  = "attributes"
	elemAttribute   = "attribute"
	elemFloat       = "float"
	elemExponential = "exponential"
	elemMission     = "system-mission-time"
	elemConstant    = "constant"
	refGate         = "gate"
	refBasicEvent   = "basic-event"
	refHouseEvent   = "house-event"
	refEvent        = "event"
)

// Model is a loaded and validated model together with the source location of
// every definition.
type Model struct {
	Snapshot memory.Snapshot
	Sources  map[string]domain.SourceLocation
	Files    []string
}

// node is a generic element tree used to interpret one definition.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
	Text    string     `xml:",chardata"`
}

func (n node) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

type reference struct {
	kind string
	name string
	gate string
}

type loader struct {
	name    string
	label   string
	events  []domain.Event
	trees   []domain.FaultTree
	sources map[string]domain.SourceLocation
	treeLoc map[string]domain.SourceLocation
	refs    []reference
	tree    string
}

// Load parses every file into a single model and validates it once. Any
// failure is an initialization error; no partial model is returned.
func Load(paths ...string) (*Model, error) {
	if len(paths) == 0 {
		return nil, domain.InitializationError(domain.InitIOError, domain.SourceLocation{}, errors.New("no input files"))
	}
	l := newLoader()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, domain.InitializationError(domain.InitIOError, domain.SourceLocation{File: path}, err)
		}
		err = l.parse(path, f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	return l.finish(paths)
}

// LoadReader parses a single document read from r. name identifies it in
// error locations.
func LoadReader(name string, r io.Reader) (*Model, error) {
	l := newLoader()
	if err := l.parse(name, r); err != nil {
		return nil, err
	}
	return l.finish([]string{name})
}

func newLoader() *loader {
	return &loader{
		sources: make(map[string]domain.SourceLocation),
		treeLoc: make(map[string]domain.SourceLocation),
	}
}

func invalidXML(loc domain.SourceLocation, format string, args ...any) error {
	return domain.InitializationError(domain.InitXMLValidity, loc, fmt.Errorf(format, args...))
}

func (l *loader) parse(file string, r io.Reader) error {
	dec := xml.NewDecoder(r)
	var stack []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, _ := dec.InputPos()
			return domain.InitializationError(domain.InitXMLValidity, domain.SourceLocation{File: file, Line: line}, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := dec.InputPos()
			loc := domain.SourceLocation{File: file, Line: line, Element: t.Name.Local}
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			if err := l.start(dec, t, parent, loc, &stack); err != nil {
				return err
			}
		case xml.EndElement:
			if len(stack) > 0 && stack[len(stack)-1] == t.Name.Local {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == elemFaultTree {
				l.tree = ""
			}
		}
	}
	if len(stack) != 0 {
		return invalidXML(domain.SourceLocation{File: file}, "unterminated document")
	}
	return nil
}

func (l *loader) start(dec *xml.Decoder, t xml.StartElement, parent string, loc domain.SourceLocation, stack *[]string) error {
	name := t.Name.Local
	switch {
	case parent == "":
		if name != elemRoot {
			return invalidXML(loc, "root element must be %s, got %s", elemRoot, name)
		}
		if l.name == "" {
			for _, a := range t.Attr {
				if a.Name.Local == "name" {
					l.name = a.Value
				}
			}
		}
		*stack = append(*stack, name)
	case name == elemFaultTree && parent == elemRoot:
		treeName := ""
		for _, a := range t.Attr {
			if a.Name.Local == "name" {
				treeName = strings.TrimSpace(a.Value)
			}
		}
		if treeName == "" {
			loc.Attribute = "name"
			return invalidXML(loc, "fault tree without name")
		}
		if _, dup := l.treeLoc[treeName]; dup {
			return domain.InitializationError(domain.InitValidationError, loc, domain.DuplicateNameError(treeName))
		}
		l.treeLoc[treeName] = loc
		l.trees = append(l.trees, domain.FaultTree{Name: treeName})
		l.tree = treeName
		*stack = append(*stack, name)
	case name == elemModelData && parent == elemRoot:
		*stack = append(*stack, name)
	case name == elemLabel && (parent == elemRoot || parent == elemFaultTree):
		var text string
		if err := dec.DecodeElement(&text, &t); err != nil {
			return invalidXML(loc, "label: %v", err)
		}
		text = strings.TrimSpace(text)
		if parent == elemRoot {
			l.label = text
		} else {
			l.trees[len(l.trees)-1].Label = text
		}
	case strings.HasPrefix(name, "define-"):
		var n node
		if err := dec.DecodeElement(&n, &t); err != nil {
			return invalidXML(loc, "%s: %v", name, err)
		}
		container := ""
		if parent == elemFaultTree {
			container = l.tree
		}
		return l.define(n, container, loc)
	default:
		if err := dec.Skip(); err != nil {
			return invalidXML(loc, "%s: %v", name, err)
		}
	}
	return nil
}

func (l *loader) define(n node, container string, loc domain.SourceLocation) error {
	kind := n.XMLName.Local
	switch kind {
	case elemGate, elemBasicEvent, elemHouseEvent:
	default:
		// Parameters, CCF groups and other constructs are outside the model.
		return nil
	}
	name, _ := n.attr("name")
	name = strings.TrimSpace(name)
	if name == "" {
		loc.Attribute = "name"
		return invalidXML(loc, "%s without name", kind)
	}
	if prev, dup := l.sources[name]; dup {
		return domain.InitializationError(domain.InitValidationError, loc,
			fmt.Errorf("first defined at %s:%d: %w", prev.File, prev.Line, domain.DuplicateNameError(name)))
	}
	var (
		ev  domain.Event
		err error
	)
	switch kind {
	case elemGate:
		if container == "" {
			return invalidXML(loc, "gate %q must be defined inside a fault tree", name)
		}
		ev, err = l.gate(n, name, container, loc)
	case elemBasicEvent:
		ev, err = basicEvent(n, name, loc)
	case elemHouseEvent:
		ev, err = houseEvent(n, name, loc)
	}
	if err != nil {
		return err
	}
	ev.Container = container
	ev.Label = label(n)
	l.events = append(l.events, ev)
	l.sources[name] = loc
	return nil
}

func label(n node) string {
	for _, c := range n.Nodes {
		if c.XMLName.Local == elemLabel {
			return strings.TrimSpace(c.Text)
		}
	}
	return ""
}

func isReference(name string) bool {
	switch name {
	case refGate, refBasicEvent, refHouseEvent, refEvent:
		return true
	}
	return false
}

func (l *loader) gate(n node, name, container string, loc domain.SourceLocation) (domain.Event, error) {
	var formulas []node
	for _, c := range n.Nodes {
		switch c.XMLName.Local {
		case elemLabel, elemAttributes:
		default:
			formulas = append(formulas, c)
		}
	}
	if len(formulas) != 1 {
		return domain.Event{}, invalidXML(loc, "gate %q must have exactly one formula", name)
	}
	f := formulas[0]
	var formula domain.Formula
	var args []node
	if isReference(f.XMLName.Local) {
		// A bare reference is a pass-through formula.
		formula.Connective = domain.ConnectiveNull
		args = []node{f}
	} else {
		conn, ok := domain.ParseConnective(f.XMLName.Local)
		if !ok {
			loc.Element = f.XMLName.Local
			return domain.Event{}, invalidXML(loc, "gate %q: unsupported formula %q", name, f.XMLName.Local)
		}
		formula.Connective = conn
		if conn == domain.ConnectiveAtLeast {
			raw, _ := f.attr("min")
			vote, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				loc.Element, loc.Attribute = f.XMLName.Local, "min"
				return domain.Event{}, invalidXML(loc, "gate %q: invalid vote number %q", name, raw)
			}
			formula.Min = vote
		}
		args = f.Nodes
	}
	for _, a := range args {
		if !isReference(a.XMLName.Local) {
			loc.Element = a.XMLName.Local
			return domain.Event{}, invalidXML(loc, "gate %q: nested formulas are not supported", name)
		}
		ref, _ := a.attr("name")
		ref = strings.TrimSpace(ref)
		if ref == "" {
			loc.Element, loc.Attribute = a.XMLName.Local, "name"
			return domain.Event{}, invalidXML(loc, "gate %q: reference without name", name)
		}
		formula.Args = append(formula.Args, ref)
		l.refs = append(l.refs, reference{kind: a.XMLName.Local, name: ref, gate: name})
	}
	return domain.NewGate(name, container, formula), nil
}

func basicEvent(n node, name string, loc domain.SourceLocation) (domain.Event, error) {
	ev := domain.NewBasicEvent(name, nil)
	for _, c := range n.Nodes {
		switch c.XMLName.Local {
		case elemLabel:
		case elemAttributes:
			for _, a := range c.Nodes {
				if a.XMLName.Local != elemAttribute {
					continue
				}
				if key, _ := a.attr("name"); key == "flavor" {
					value, _ := a.attr("value")
					switch domain.Flavor(value) {
					case domain.FlavorBasic, domain.FlavorUndeveloped:
						ev.Basic.Flavor = domain.Flavor(value)
					default:
						loc.Element, loc.Attribute = elemAttribute, "value"
						return domain.Event{}, invalidXML(loc, "basic event %q: unknown flavor %q", name, value)
					}
				}
			}
		case elemFloat:
			v, err := floatValue(c)
			if err != nil {
				loc.Element, loc.Attribute = elemFloat, "value"
				return domain.Event{}, invalidXML(loc, "basic event %q: %v", name, err)
			}
			ev.Basic.Expression = &domain.Expression{Kind: domain.ExpressionConstant, Value: v}
		case elemExponential:
			rate, err := exponentialRate(c)
			if err != nil {
				loc.Element = elemExponential
				return domain.Event{}, invalidXML(loc, "basic event %q: %v", name, err)
			}
			ev.Basic.Expression = &domain.Expression{Kind: domain.ExpressionExponential, Value: rate}
		default:
			loc.Element = c.XMLName.Local
			return domain.Event{}, invalidXML(loc, "basic event %q: unsupported expression %q", name, c.XMLName.Local)
		}
	}
	if ev.Basic.Expression != nil {
		if err := ev.Basic.Expression.Validate(name); err != nil {
			return domain.Event{}, domain.InitializationError(domain.InitValidationError, loc, err)
		}
	}
	return ev, nil
}

func floatValue(n node) (float64, error) {
	raw, ok := n.attr("value")
	if !ok {
		return 0, errors.New("float without value")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", raw)
	}
	return v, nil
}

// exponentialRate accepts exponential(float, system-mission-time), the only
// form the model stores.
func exponentialRate(n node) (float64, error) {
	if len(n.Nodes) != 2 || n.Nodes[0].XMLName.Local != elemFloat || n.Nodes[1].XMLName.Local != elemMission {
		return 0, errors.New("exponential expects a float rate and system-mission-time")
	}
	return floatValue(n.Nodes[0])
}

func houseEvent(n node, name string, loc domain.SourceLocation) (domain.Event, error) {
	ev := domain.NewHouseEvent(name, false)
	for _, c := range n.Nodes {
		switch c.XMLName.Local {
		case elemLabel, elemAttributes:
		case elemConstant:
			raw, _ := c.attr("value")
			state, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				loc.Element, loc.Attribute = elemConstant, "value"
				return domain.Event{}, invalidXML(loc, "house event %q: invalid state %q", name, raw)
			}
			ev.House.State = state
		default:
			loc.Element = c.XMLName.Local
			return domain.Event{}, invalidXML(loc, "house event %q: unsupported expression %q", name, c.XMLName.Local)
		}
	}
	return ev, nil
}

func (l *loader) finish(files []string) (*Model, error) {
	kinds := make(map[string]domain.EventKind, len(l.events))
	for _, ev := range l.events {
		kinds[ev.Name] = ev.Kind
	}
	for _, ref := range l.refs {
		kind, ok := kinds[ref.name]
		if !ok {
			return nil, domain.InitializationError(domain.InitValidationError, l.sources[ref.gate], domain.NotFoundError("event", ref.name))
		}
		if ref.kind != refEvent && string(kind) != ref.kind {
			return nil, domain.InitializationError(domain.InitValidationError, l.sources[ref.gate],
				domain.InvalidEventError(ref.name, fmt.Sprintf("referenced as %s but defined as %s", ref.kind, kind)))
		}
	}
	snapshot := memory.Snapshot{Name: l.name, Label: l.label, Events: l.events, FaultTrees: l.trees}
	var topErr error
	for i := range snapshot.FaultTrees {
		ft := &snapshot.FaultTrees[i]
		var firstGate string
		for _, ev := range l.events {
			if ev.Container != ft.Name {
				continue
			}
			ft.Members = append(ft.Members, ev.Name)
			if ev.IsGate() && firstGate == "" {
				firstGate = ev.Name
			}
		}
		root, err := topGate(ft.Name, ft.Members, l.events)
		if err != nil {
			// Structural errors such as cycles explain an ambiguous top
			// gate better, so validate against a provisional root first.
			if topErr == nil {
				topErr = domain.InitializationError(domain.InitValidationError, l.treeLoc[ft.Name], err)
			}
			root = firstGate
		}
		ft.Root = root
	}
	if snapshot.FaultTrees == nil {
		snapshot.FaultTrees = []domain.FaultTree{}
	}
	if err := memory.ValidateSnapshot(snapshot); err != nil {
		return nil, domain.InitializationError(domain.InitValidationError, l.locate(err), err)
	}
	if topErr != nil {
		return nil, topErr
	}
	return &Model{Snapshot: snapshot, Sources: l.sources, Files: append([]string(nil), files...)}, nil
}

// topGate returns the single gate of the tree that no other gate of the same
// tree references.
func topGate(tree string, members []string, events []domain.Event) (string, error) {
	if len(members) == 0 {
		return "", nil
	}
	inTree := make(map[string]bool, len(members))
	for _, m := range members {
		inTree[m] = true
	}
	referenced := make(map[string]bool)
	var gates []string
	for _, ev := range events {
		if !ev.IsGate() || ev.Container != tree {
			continue
		}
		gates = append(gates, ev.Name)
		for _, arg := range ev.Gate.Formula.Args {
			if inTree[arg] {
				referenced[arg] = true
			}
		}
	}
	var tops []string
	for _, g := range gates {
		if !referenced[g] {
			tops = append(tops, g)
		}
	}
	if len(tops) != 1 {
		return "", domain.TopGateError(tree)
	}
	return tops[0], nil
}

// locate maps a validation error onto the definition it names.
func (l *loader) locate(err error) domain.SourceLocation {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return domain.SourceLocation{}
	}
	for _, key := range []string{domain.MetaGate, domain.MetaName} {
		if loc, ok := l.sources[derr.Meta(key)]; ok {
			return loc
		}
	}
	if loc, ok := l.treeLoc[derr.Meta(domain.MetaFaultTree)]; ok {
		return loc
	}
	return domain.SourceLocation{}
}
