package mef

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"faultcore/internal/infra/persistence/memory"
	"faultcore/pkg/domain"
)

// Write serializes snapshot as an opsa-mef document. Gates and the leaves a
// fault tree contains are written inside their tree; model-scope leaves go to
// model-data. The snapshot must pass whole-model validation.
func Write(w io.Writer, snapshot memory.Snapshot) error {
	if err := memory.ValidateSnapshot(snapshot); err != nil {
		return fmt.Errorf("write mef: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write mef: %w", err)
	}
	e := &encoder{enc: xml.NewEncoder(w)}
	e.enc.Indent("", "  ")

	byName := make(map[string]domain.Event, len(snapshot.Events))
	for _, ev := range snapshot.Events {
		byName[ev.Name] = ev
	}

	root := start(elemRoot)
	if snapshot.Name != "" {
		root.Attr = append(root.Attr, attr("name", snapshot.Name))
	}
	e.open(root)
	e.label(snapshot.Label)
	for _, ft := range snapshot.FaultTrees {
		e.open(start(elemFaultTree, attr("name", ft.Name)))
		e.label(ft.Label)
		for _, member := range ft.Members {
			e.event(byName[member], byName)
		}
		e.close(elemFaultTree)
	}
	var scoped []domain.Event
	for _, ev := range snapshot.Events {
		if ev.Container == "" {
			scoped = append(scoped, ev)
		}
	}
	if len(scoped) > 0 {
		e.open(start(elemModelData))
		for _, ev := range scoped {
			e.event(ev, byName)
		}
		e.close(elemModelData)
	}
	e.close(elemRoot)
	if e.err == nil {
		e.err = e.enc.Flush()
	}
	if e.err == nil {
		_, e.err = io.WriteString(w, "\n")
	}
	if e.err != nil {
		return fmt.Errorf("write mef: %w", e.err)
	}
	return nil
}

// encoder keeps the first token error so element helpers stay linear.
type encoder struct {
	enc *xml.Encoder
	err error
}

func start(name string, attrs ...xml.Attr) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (e *encoder) token(t xml.Token) {
	if e.err == nil {
		e.err = e.enc.EncodeToken(t)
	}
}

func (e *encoder) open(s xml.StartElement) { e.token(s) }

func (e *encoder) close(name string) { e.token(xml.EndElement{Name: xml.Name{Local: name}}) }

func (e *encoder) empty(s xml.StartElement) {
	e.open(s)
	e.close(s.Name.Local)
}

func (e *encoder) label(text string) {
	if text == "" {
		return
	}
	e.open(start(elemLabel))
	e.token(xml.CharData(text))
	e.close(elemLabel)
}

func (e *encoder) event(ev domain.Event, byName map[string]domain.Event) {
	switch ev.Kind {
	case domain.KindGate:
		e.open(start(elemGate, attr("name", ev.Name)))
		e.label(ev.Label)
		e.formula(ev.Gate.Formula, byName)
		e.close(elemGate)
	case domain.KindBasicEvent:
		e.open(start(elemBasicEvent, attr("name", ev.Name)))
		e.label(ev.Label)
		if ev.Basic.Flavor == domain.FlavorUndeveloped {
			e.open(start(elemAttributes))
			e.empty(start(elemAttribute, attr("name", "flavor"), attr("value", string(domain.FlavorUndeveloped))))
			e.close(elemAttributes)
		}
		if x := ev.Basic.Expression; x != nil {
			value := attr("value", strconv.FormatFloat(x.Value, 'g', -1, 64))
			switch x.Kind {
			case domain.ExpressionConstant:
				e.empty(start(elemFloat, value))
			case domain.ExpressionExponential:
				e.open(start(elemExponential))
				e.empty(start(elemFloat, value))
				e.empty(start(elemMission))
				e.close(elemExponential)
			}
		}
		e.close(elemBasicEvent)
	case domain.KindHouseEvent:
		e.open(start(elemHouseEvent, attr("name", ev.Name)))
		e.label(ev.Label)
		e.empty(start(elemConstant, attr("value", strconv.FormatBool(ev.House.State))))
		e.close(elemHouseEvent)
	}
}

func (e *encoder) formula(f domain.Formula, byName map[string]domain.Event) {
	if f.Connective == domain.ConnectiveNull && len(f.Args) == 1 {
		e.reference(f.Args[0], byName)
		return
	}
	head := start(string(f.Connective))
	if f.Connective == domain.ConnectiveAtLeast {
		head.Attr = append(head.Attr, attr("min", strconv.Itoa(f.Min)))
	}
	e.open(head)
	for _, arg := range f.Args {
		e.reference(arg, byName)
	}
	e.close(string(f.Connective))
}

func (e *encoder) reference(name string, byName map[string]domain.Event) {
	kind := refEvent
	if ev, ok := byName[name]; ok {
		kind = string(ev.Kind)
	}
	e.empty(start(kind, attr("name", name)))
}
