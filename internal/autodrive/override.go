package autodrive

import (
	"context"
	"fmt"

	"github.com/banshee-data/lanepilot/internal/drive"
	"github.com/banshee-data/lanepilot/internal/serialmux"
)

// applyOperatorLine feeds one board line into the controller. MANUAL lines
// engage override with the given set-points; AUTO hands control back, which
// restarts the sequence. Other lines are ignored.
func applyOperatorLine(c *drive.Controller, line string) error {
	switch serialmux.ClassifyLine(line) {
	case serialmux.EventTypeManual:
		s, t, err := serialmux.ParseManual(line)
		if err != nil {
			return err
		}
		cmd := c.ManualCommand(s, t)
		tracef("manual %.3f %.3f", cmd.Steering, cmd.Throttle)
	case serialmux.EventTypeAuto:
		c.SetManual(false)
		diagf("operator returned control")
	case serialmux.EventTypeFault:
		opsf("board fault: %s", line)
	case serialmux.EventTypeAck:
	default:
		return fmt.Errorf("unrecognised operator line %q", line)
	}
	return nil
}

func (p *Pipeline) operatorLoop(ctx context.Context) {
	id, lines := p.opts.Operator.Subscribe()
	defer p.opts.Operator.Unsubscribe(id)
	diagf("operator override listening")

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := applyOperatorLine(p.opts.Controller, line); err != nil {
				tracef("operator: %v", err)
			}
		}
	}
}
