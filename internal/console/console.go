package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/zombor/nutriscan/internal/editor"
	"github.com/zombor/nutriscan/internal/nutrition"
	"github.com/zombor/nutriscan/internal/workflow"
)

// ErrUnknownCommand is returned for input the console does not understand
var ErrUnknownCommand = errors.New("unknown command")

// Workflow is the subset of the capture workflow the console drives
type Workflow interface {
	Open(ctx context.Context) error
	SubmitManualCode(raw string) error
	RequestPhoto(ctx context.Context) error
	RetakePhoto(ctx context.Context) error
	CapturePhoto() error
	Analyze() error
	Edit(fn func(e *editor.Editor) error) error
	Confirm(ctx context.Context) (nutrition.MealEntry, error)
	Cancel()
	Snapshot() workflow.Session
	Totals() (editor.Totals, error)
}

const help = `commands:
  open              start a scan session
  code <digits>     enter a barcode by hand
  photo             switch to label photo capture
  capture           take the label photo
  retake            discard the photo and capture again
  analyze           send the photo for analysis
  x <multiplier>    set servings (multiples of 0.5)
  + / -             add or remove half a serving
  set <field> <v>   edit name, calories, protein, carbs, fat, sodium or sugar
  show              print the current session
  confirm           log the meal
  cancel            abandon the session
  quit              exit`

// Console reads commands line by line and drives a Workflow
type Console struct {
	wf  Workflow
	out io.Writer
	mu  sync.Mutex
}

// New creates a console writing to out. Attach a Workflow before Run.
func New(out io.Writer) *Console {
	return &Console{out: out}
}

// Attach sets the workflow the console drives
func (c *Console) Attach(wf Workflow) {
	c.wf = wf
}

// Run processes commands from in until EOF, quit, or ctx is done
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errs <- scanner.Err()
		close(lines)
	}()

	c.printf("type 'help' for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errs
			}
			quit, err := c.Execute(ctx, line)
			if err != nil {
				c.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs a single command line. It reports true when the console
// should exit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		c.printf("%s\n", help)
	case "open", "scan":
		return false, c.wf.Open(ctx)
	case "code":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: code <digits>")
		}
		return false, c.wf.SubmitManualCode(args[0])
	case "photo":
		return false, c.wf.RequestPhoto(ctx)
	case "retake":
		return false, c.wf.RetakePhoto(ctx)
	case "capture":
		return false, c.wf.CapturePhoto()
	case "analyze":
		return false, c.wf.Analyze()
	case "x":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: x <multiplier>")
		}
		m, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("invalid multiplier %q", args[0])
		}
		return false, c.edit(func(e *editor.Editor) error { return e.SetMultiplier(m) })
	case "+":
		return false, c.edit(func(e *editor.Editor) error {
			e.Increment()
			return nil
		})
	case "-":
		return false, c.edit(func(e *editor.Editor) error {
			e.Decrement()
			return nil
		})
	case "set":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: set <field> <value>")
		}
		value := strings.Join(args[1:], " ")
		return false, c.edit(func(e *editor.Editor) error { return e.Set(args[0], value) })
	case "show", "status":
		c.show()
	case "confirm":
		entry, err := c.wf.Confirm(ctx)
		if err != nil {
			return false, err
		}
		c.printf("logged %s: %d kcal (x%g)\n", entry.Name, entry.Calories, entry.Multiplier)
	case "cancel":
		c.wf.Cancel()
	case "quit", "exit":
		c.wf.Cancel()
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return false, nil
}

func (c *Console) edit(fn func(e *editor.Editor) error) error {
	if err := c.wf.Edit(fn); err != nil {
		return err
	}
	c.show()
	return nil
}

func (c *Console) show() {
	if c.wf == nil {
		return
	}
	snap := c.wf.Snapshot()
	c.printf("state: %s\n", snap.State)
	if snap.Code != "" {
		c.printf("code: %s\n", snap.Code)
	}
	if snap.Product == nil {
		return
	}
	p := snap.Product
	c.printf("product: %s", p.Name)
	if p.Brand != "" {
		c.printf(" (%s)", p.Brand)
	}
	c.printf(" [%s]\n", p.Provenance)

	totals, err := c.wf.Totals()
	if err != nil {
		return
	}
	c.printf("servings: x%g\n", snap.Multiplier)
	c.printf("calories %d  protein %dg  carbs %dg  fat %dg  sodium %dmg  sugar %dg\n",
		totals.Calories, totals.Protein, totals.Carbs, totals.Fat, totals.Sodium, totals.Sugar)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Observer prints workflow notifications to the console output
func (c *Console) Observer() workflow.Observer {
	return observer{c}
}

type observer struct {
	c *Console
}

func (o observer) StateChanged(_ string, _, to workflow.State) {
	switch to {
	case workflow.StateScanning:
		o.c.printf("scanning...\n")
	case workflow.StateResolved:
		o.c.printf("found it\n")
		o.c.show()
	case workflow.StateUnresolved:
		o.c.printf("product not found, type 'photo' to capture the nutrition label\n")
	case workflow.StatePhotoCapture:
		o.c.printf("photo captured, type 'analyze' or 'retake'\n")
	case workflow.StateConfirming:
		o.c.printf("estimate ready\n")
		o.c.show()
	case workflow.StateClosed:
		o.c.printf("session closed\n")
	}
}

func (o observer) LimitReached(limit nutrition.LimitReached) {
	o.c.printf("daily %s limit reached (%d/%d)\n", limit.Kind, limit.Used, limit.Limit)
}

func (o observer) Error(err error) {
	o.c.printf("error: %v\n", err)
}

func (o observer) LowConfidence(confidence int) {
	o.c.printf("low confidence (%d%%), please check the values\n", confidence)
}
