package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zhouzirui/locus/backend/internal/service/conversation"
)

// printer renders engine events as a running transcript.
type printer struct {
	out     io.Writer
	persona string

	mu      sync.Mutex
	settled uint64
	cond    chan struct{}
}

func newPrinter(out io.Writer, persona string) *printer {
	if persona == "" {
		persona = "Locus"
	}
	return &printer{out: out, persona: persona, cond: make(chan struct{})}
}

func (p *printer) run(events <-chan conversation.Event) {
	for ev := range events {
		switch ev.Type {
		case conversation.EventPlaceholder:
			fmt.Fprintf(p.out, "%s: ", p.persona)
		case conversation.EventDelta:
			fmt.Fprint(p.out, ev.Delta)
		case conversation.EventCompleted:
			fmt.Fprintln(p.out)
			p.settle(ev.Turn)
		case conversation.EventTruncated:
			fmt.Fprintln(p.out, conversation.CutOffSuffix)
			p.settle(ev.Turn)
		case conversation.EventApology:
			// 占位行已经打印了名字
			if ev.Message != nil {
				fmt.Fprintln(p.out, ev.Message.Content)
			}
			p.settle(ev.Turn)
		case conversation.EventAudioSkipped:
			fmt.Fprintf(p.out, "(no audio: %s)\n", ev.Error)
		case conversation.EventReset:
			p.settle(ev.Turn)
		}
	}
}

func (p *printer) settle(turn uint64) {
	p.mu.Lock()
	if turn > p.settled {
		p.settled = turn
	}
	close(p.cond)
	p.cond = make(chan struct{})
	p.mu.Unlock()
}

// waitSettled blocks until turn has been printed or timeout passes.
func (p *printer) waitSettled(turn uint64, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		done := p.settled >= turn
		cond := p.cond
		p.mu.Unlock()
		if done {
			return true
		}
		select {
		case <-cond:
		case <-deadline:
			return false
		}
	}
}
