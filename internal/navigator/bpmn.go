package navigator

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const TypeBPMN = "bpmn"

// EventConditional names triggers produced by conditional event definitions.
const EventConditional = "conditional"

type bpmnDefinitions struct {
	Messages  []bpmnRef     `xml:"message"`
	Signals   []bpmnRef     `xml:"signal"`
	Processes []bpmnProcess `xml:"process"`
}

type bpmnRef struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type bpmnProcess struct {
	ID       string        `xml:"id,attr"`
	Elements []bpmnElement `xml:",any"`
}

type bpmnBody struct {
	Text string `xml:",chardata"`
}

type bpmnElement struct {
	XMLName        xml.Name
	ID             string    `xml:"id,attr"`
	Name           string    `xml:"name,attr"`
	Default        string    `xml:"default,attr"`
	SourceRef      string    `xml:"sourceRef,attr"`
	TargetRef      string    `xml:"targetRef,attr"`
	AttachedToRef  string    `xml:"attachedToRef,attr"`
	CancelActivity string    `xml:"cancelActivity,attr"`
	Documentation  string    `xml:"documentation"`
	Condition      *bpmnBody `xml:"conditionExpression"`
	Timer          *struct {
		Duration string `xml:"timeDuration"`
	} `xml:"timerEventDefinition"`
	Message *struct {
		Ref string `xml:"messageRef,attr"`
	} `xml:"messageEventDefinition"`
	Signal *struct {
		Ref string `xml:"signalRef,attr"`
	} `xml:"signalEventDefinition"`
	Conditional *struct {
		Condition bpmnBody `xml:"condition"`
	} `xml:"conditionalEventDefinition"`
}

// BPMNNavigator walks BPMN 2.0 processes (graph.__type == "bpmn") whose XML
// lives in graph.schema.data.
type BPMNNavigator struct {
	*base
}

func NewBPMNNavigator() *BPMNNavigator {
	return &BPMNNavigator{base: newBase(TypeBPMN, compileBPMN)}
}

func (n *BPMNNavigator) CanNavigate(routine any) bool {
	cfg, ok := asConfig(routine)
	if !ok {
		return false
	}
	t, _ := graphType(cfg)
	return t == TypeBPMN
}

func bpmnSource(cfg map[string]any) (data, processID string, err error) {
	g, _ := cfg["graph"].(map[string]any)
	if g == nil {
		return "", "", fmt.Errorf("missing graph")
	}
	switch s := g["schema"].(type) {
	case map[string]any:
		data, _ = s["data"].(string)
		processID, _ = s["processId"].(string)
	case string:
		data = s
	}
	if data == "" {
		data, _ = g["data"].(string)
	}
	if strings.TrimSpace(data) == "" {
		return "", "", fmt.Errorf("missing BPMN schema data")
	}
	return data, processID, nil
}

func compileBPMN(cfg map[string]any) (*graph, error) {
	data, processID, err := bpmnSource(cfg)
	if err != nil {
		return nil, err
	}
	var defs bpmnDefinitions
	if err := xml.Unmarshal([]byte(data), &defs); err != nil {
		return nil, fmt.Errorf("parse BPMN: %w", err)
	}
	proc, err := pickProcess(defs.Processes, processID)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]string)
	for _, r := range append(defs.Messages, defs.Signals...) {
		if r.Name != "" {
			refs[r.ID] = r.Name
		}
	}

	g := newGraph()
	var flows, boundaries []bpmnElement
	for _, el := range proc.Elements {
		kind := el.XMLName.Local
		switch {
		case kind == "sequenceFlow":
			flows = append(flows, el)
			continue
		case !isFlowNode(kind):
			continue
		}
		n := &node{
			ID:          el.ID,
			Name:        el.Name,
			Description: strings.TrimSpace(el.Documentation),
			Kind:        kind,
			Default:     el.Default,
			Mode:        allMatches,
		}
		switch kind {
		case "endEvent":
			n.Terminal = true
		case "exclusiveGateway":
			n.Mode = firstMatch
		case "parallelGateway", "eventBasedGateway":
			n.Mode = allEdges
		case "boundaryEvent":
			n.Attached = true
			boundaries = append(boundaries, el)
		}
		if kind != "boundaryEvent" {
			n.Triggers = eventTriggers(el, refs)
		}
		if err := g.add(n); err != nil {
			return nil, err
		}
	}
	if len(g.order) == 0 {
		return nil, fmt.Errorf("process %q has no flow nodes", proc.ID)
	}

	for _, f := range flows {
		e := edge{ID: f.ID, To: f.TargetRef}
		if f.Condition != nil {
			e.Condition = strings.TrimSpace(f.Condition.Text)
		}
		if err := g.connect(f.SourceRef, e); err != nil {
			return nil, err
		}
	}

	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind != "intermediateCatchEvent" {
			continue
		}
		el := findElement(proc.Elements, id)
		if el.Timer != nil {
			n.Timeouts = append(n.Timeouts, timeoutSpec{
				Duration: strings.TrimSpace(el.Timer.Duration),
				Action:   TimeoutInterrupt,
				Fallback: firstTarget(n),
			})
		}
	}

	for _, b := range boundaries {
		host, ok := g.nodes[b.AttachedToRef]
		if !ok {
			return nil, fmt.Errorf("boundary event %q attached to unknown node %q", b.ID, b.AttachedToRef)
		}
		bn := g.nodes[b.ID]
		if b.Timer != nil {
			action := TimeoutInterrupt
			if b.CancelActivity == "false" {
				action = TimeoutNotify
			}
			host.Timeouts = append(host.Timeouts, timeoutSpec{
				Duration: strings.TrimSpace(b.Timer.Duration),
				Action:   action,
				Fallback: firstTarget(bn),
			})
		}
		host.Triggers = append(host.Triggers, eventTriggers(b, refs)...)
	}

	for _, n := range g.nodes {
		for _, t := range n.Timeouts {
			if _, err := ParseDuration(t.Duration); err != nil {
				return nil, fmt.Errorf("node %q: %w", n.ID, err)
			}
		}
	}
	return g, nil
}

func pickProcess(procs []bpmnProcess, id string) (bpmnProcess, error) {
	if len(procs) == 0 {
		return bpmnProcess{}, fmt.Errorf("no process defined")
	}
	if id == "" {
		return procs[0], nil
	}
	for _, p := range procs {
		if p.ID == id {
			return p, nil
		}
	}
	return bpmnProcess{}, fmt.Errorf("process %q not found", id)
}

func isFlowNode(kind string) bool {
	switch kind {
	case "startEvent", "endEvent", "intermediateCatchEvent", "intermediateThrowEvent", "boundaryEvent",
		"exclusiveGateway", "parallelGateway", "inclusiveGateway", "eventBasedGateway", "complexGateway",
		"subProcess", "callActivity", "transaction":
		return true
	}
	return strings.HasSuffix(kind, "Task") || kind == "task"
}

func eventTriggers(el bpmnElement, refs map[string]string) []Trigger {
	var out []Trigger
	name := func(ref string) string {
		if n, ok := refs[ref]; ok {
			return n
		}
		if ref != "" {
			return ref
		}
		if el.Name != "" {
			return el.Name
		}
		return el.ID
	}
	if el.Message != nil {
		out = append(out, Trigger{Event: name(el.Message.Ref)})
	}
	if el.Signal != nil {
		out = append(out, Trigger{Event: name(el.Signal.Ref)})
	}
	if el.Conditional != nil {
		out = append(out, Trigger{Event: EventConditional, Condition: strings.TrimSpace(el.Conditional.Condition.Text)})
	}
	return out
}

func findElement(els []bpmnElement, id string) bpmnElement {
	for _, el := range els {
		if el.ID == id {
			return el
		}
	}
	return bpmnElement{}
}

func firstTarget(n *node) string {
	if n == nil || len(n.Out) == 0 {
		return ""
	}
	return n.Out[0].To
}
