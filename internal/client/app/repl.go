package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/liftlog/internal/client/collection"
	"github.com/atinyakov/liftlog/internal/client/offline"
	"github.com/atinyakov/liftlog/internal/client/workout"
)

const helpText = `Commands:
  login <email>                      sign in (password on next line)
  register <email>                   create an account
  logout                             sign out
  status                             session, connectivity and queue
  workouts                           list workouts
  workout start <name>               start a workout now
  workout show <id>                  print one workout
  workout set <id> <exercise> <reps> <weight>
  workout rename <id> <name>
  workout notes <id> <text>
  workout delete <id>
  measure <kind> <value> <unit>      record a measurement
  measurements [kind]                list measurements
  sync                               replay queued changes now
  exit`

// console serialises writes from the prompt and from background notices.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Notify implements offline.Notifier.
func (c *console) Notify(msg string) {
	c.Printf("* %s\n", msg)
}

var _ offline.Notifier = (*console)(nil)

type repl struct {
	c     *Client
	con   *console
	lines <-chan string
}

func newREPL(c *Client, con *console, in io.Reader) *repl {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &repl{c: c, con: con, lines: lines}
}

// next reads one line. ok is false on EOF or when ctx is done.
func (r *repl) next(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-r.lines:
		return strings.TrimSpace(line), ok
	case <-ctx.Done():
		return "", false
	}
}

func (r *repl) run(ctx context.Context) {
	for {
		r.con.Printf("%s> ", r.prompt())
		line, ok := r.next(ctx)
		if !ok {
			r.con.Printf("\n")
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			r.con.Printf("Bye\n")
			return
		}
		if err := r.dispatch(ctx, args); err != nil {
			r.con.Printf("error: %v\n", err)
		}
	}
}

func (r *repl) prompt() string {
	var flags []string
	if !r.c.Monitor.Online() {
		flags = append(flags, "offline")
	}
	if n := r.c.Queue.Len(); n > 0 {
		flags = append(flags, fmt.Sprintf("%d queued", n))
	}
	if len(flags) == 0 {
		return "liftlog"
	}
	return "liftlog (" + strings.Join(flags, ", ") + ")"
}

func (r *repl) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		r.con.Printf("%s\n", helpText)
	case "login", "register":
		return r.authenticate(ctx, args)
	case "logout":
		r.c.Logout()
	case "status":
		r.status()
	case "workouts":
		r.listWorkouts()
	case "workout":
		return r.workout(ctx, args[1:])
	case "measure":
		return r.measure(ctx, args[1:])
	case "measurements":
		r.listMeasurements(strings.Join(args[1:], " "))
	case "sync":
		res, err := r.c.Sync(ctx)
		if err != nil {
			return err
		}
		r.con.Printf("synced %d, discarded %d, retained %d, dropped %d\n",
			res.Synced, res.Discarded, res.Retained, res.Dropped)
	default:
		r.con.Printf("Unknown command. Type 'help' for a list of commands.\n")
	}
	return nil
}

func (r *repl) authenticate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <email>", args[0])
	}
	r.con.Printf("password: ")
	password, ok := r.next(ctx)
	if !ok {
		return errors.New("no password given")
	}

	login := r.c.Login
	if args[0] == "register" {
		login = r.c.Register
	}
	u, err := login(ctx, args[1], password)
	if err != nil {
		return err
	}
	r.con.Printf("Signed in as %s\n", u.Email)
	return nil
}

func (r *repl) status() {
	if u, ok := r.c.Session.User(); ok && r.c.Session.IsAuthenticated() {
		r.con.Printf("signed in as %s\n", u.Email)
	} else {
		r.con.Printf("signed out, changes are kept on this device\n")
	}
	r.con.Printf("api online: %t\n", r.c.Monitor.Online())
	r.con.Printf("queued changes: %d\n", r.c.Queue.Len())
	r.con.Printf("requests in flight: %d\n", r.c.Loading.Count())
}

func (r *repl) listWorkouts() {
	list := r.c.Workouts.List()
	if len(list) == 0 {
		r.con.Printf("no workouts\n")
		return
	}
	for _, w := range list {
		r.con.Printf("%s  %s  %-24s %d exercises, volume %.1f%s\n",
			w.ID, w.StartedAt.Local().Format(time.DateOnly), w.Name, len(w.Exercises), w.Volume(), pendingMark(w.Pending))
	}
}

func (r *repl) showWorkout(w workout.Workout) {
	r.con.Printf("%s%s\n  id: %s\n  started: %s\n", w.Name, pendingMark(w.Pending), w.ID, w.StartedAt.Local().Format(time.DateTime))
	for _, e := range w.Exercises {
		r.con.Printf("  %s\n", e.Name)
		for i, s := range e.Sets {
			r.con.Printf("    %d. %d x %.1f\n", i+1, s.Reps, s.Weight)
		}
	}
	if w.Notes != "" {
		r.con.Printf("  notes: %s\n", w.Notes)
	}
}

func (r *repl) workout(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: workout start|show|set|rename|notes|delete ...")
	}
	sub, args := args[0], args[1:]

	if sub == "start" {
		if len(args) == 0 {
			return errors.New("usage: workout start <name>")
		}
		w, err := r.c.Workouts.Start(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		r.con.Printf("started %s (%s)\n", w.Name, w.ID)
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("usage: workout %s <id> ...", sub)
	}
	id, rest := args[0], args[1:]

	var (
		w   workout.Workout
		err error
	)
	switch sub {
	case "show":
		got, ok := r.c.Workouts.Get(id)
		if !ok {
			return fmt.Errorf("workout %q: %w", id, collection.ErrNotFound)
		}
		r.showWorkout(got)
		return nil
	case "set":
		if len(rest) < 3 {
			return errors.New("usage: workout set <id> <exercise> <reps> <weight>")
		}
		n := len(rest)
		reps, perr := strconv.Atoi(rest[n-2])
		if perr != nil {
			return fmt.Errorf("reps: %w", perr)
		}
		weight, perr := strconv.ParseFloat(rest[n-1], 64)
		if perr != nil {
			return fmt.Errorf("weight: %w", perr)
		}
		w, err = r.c.Workouts.AddSet(ctx, id, strings.Join(rest[:n-2], " "), reps, weight)
	case "rename":
		w, err = r.c.Workouts.Rename(ctx, id, strings.Join(rest, " "))
	case "notes":
		w, err = r.c.Workouts.SetNotes(ctx, id, strings.Join(rest, " "))
	case "delete":
		if err := r.c.Workouts.Delete(ctx, id); err != nil {
			return err
		}
		r.con.Printf("deleted %s\n", id)
		return nil
	default:
		return fmt.Errorf("unknown workout command %q", sub)
	}
	if err != nil {
		return err
	}
	r.showWorkout(w)
	return nil
}

func (r *repl) measure(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: measure <kind> <value> <unit>")
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	m, err := r.c.Measurements.Record(ctx, args[0], value, args[2])
	if err != nil {
		return err
	}
	r.con.Printf("recorded %s %.1f %s%s\n", m.Kind, m.Value, m.Unit, pendingMark(m.Pending))
	return nil
}

func (r *repl) listMeasurements(kind string) {
	list := r.c.Measurements.List(kind)
	if len(list) == 0 {
		r.con.Printf("no measurements\n")
		return
	}
	for _, m := range list {
		r.con.Printf("%s  %-10s %8.1f %s%s\n",
			m.TakenAt.Local().Format(time.DateOnly), m.Kind, m.Value, m.Unit, pendingMark(m.Pending))
	}
}

func pendingMark(pending bool) string {
	if pending {
		return "  (pending sync)"
	}
	return ""
}
