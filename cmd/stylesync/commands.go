package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/tidwall/pretty"

	"github.com/dshills/stylesync/internal/app"
	"github.com/dshills/stylesync/internal/collab"
	"github.com/dshills/stylesync/internal/config"
	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/event/topic"
)

var errUsage = errors.New("usage")

// environment is what a command runs against.
type environment struct {
	config     config.Config
	configPath string
	overrides  []config.Option
	out        io.Writer
	color      bool
	appOpts    []app.Option
}

type command struct {
	args int // exact number of arguments
	load bool
	run  func(ctx context.Context, env *environment, a *app.App, args []string) error
}

var commands = map[string]command{
	"get":            {args: 1, load: true, run: cmdGet},
	"set":            {args: 2, load: true, run: cmdSet},
	"export":         {args: 0, load: true, run: cmdExport},
	"reset":          {args: 0, load: true, run: cmdReset},
	"apply-template": {args: 1, load: true, run: cmdApplyTemplate},
	"apply-palette":  {args: 1, load: true, run: cmdApplyPalette},
	"watch":          {args: 0, load: true, run: cmdWatch},
}

// execute runs the command named by args[0].
func execute(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok || len(args)-1 != cmd.args {
		return errUsage
	}

	a, err := app.New(env.config, env.appOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.load {
		if err := a.Load(ctx); err != nil {
			return err
		}
	}
	return cmd.run(ctx, env, a, args[1:])
}

func cmdGet(_ context.Context, env *environment, a *app.App, args []string) error {
	v := a.Store().GetSetting(args[0])
	if !v.Exists() {
		return fmt.Errorf("%s: not set", args[0])
	}
	env.print([]byte(v.Raw))
	return nil
}

// cmdSet accepts a JSON value; anything that is not valid JSON is stored
// as a string.
func cmdSet(ctx context.Context, env *environment, a *app.App, args []string) error {
	var value any
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		value = args[1]
	}
	if err := a.Store().UpdateSetting(args[0], value); err != nil {
		return err
	}
	if err := a.Save(ctx); err != nil {
		return err
	}
	env.print([]byte(a.Store().GetSetting(args[0]).Raw))
	return nil
}

func cmdExport(_ context.Context, env *environment, a *app.App, _ []string) error {
	env.print(a.Store().Tree().Bytes())
	return nil
}

func cmdReset(ctx context.Context, env *environment, a *app.App, _ []string) error {
	a.Store().ResetToDefaults()
	if err := a.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintln(env.out, "settings reset to defaults")
	return nil
}

func cmdApplyTemplate(ctx context.Context, env *environment, a *app.App, args []string) error {
	tree, err := a.Actions().ApplyTemplate(ctx, args[0])
	if err != nil {
		return err
	}
	env.print(tree.Bytes())
	return nil
}

func cmdApplyPalette(ctx context.Context, env *environment, a *app.App, args []string) error {
	if _, err := a.Actions().ApplyPalette(ctx, args[0]); err != nil {
		return err
	}
	env.print([]byte(a.Store().GetSetting("palettes").Raw))
	return nil
}

// cmdWatch enables collaboration and prints remote activity until ctx is
// done. When a config file is in use, token changes in it are applied
// without reconnecting.
func cmdWatch(ctx context.Context, env *environment, a *app.App, _ []string) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(env.out, format, args...)
	}

	var subs []event.Subscription
	on := func(t topic.Topic, fn func(event.Event) error) {
		sub, err := a.Bus().OnFunc(t, fn)
		if err != nil {
			glog.Errorf("watch: subscribe %s: %v", t, err)
			return
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	on(event.TopicCollabRemoteChange, func(e event.Event) error {
		p := e.Payload.(collab.RemoteChangePayload)
		if p.Deleted {
			printf("%s  %s deleted by %s\n", p.Timestamp.Format("15:04:05"), p.Path, userOrClient(p.UserID, p.ClientID))
			return nil
		}
		raw, _ := json.Marshal(p.Value)
		printf("%s  %s = %s by %s\n", p.Timestamp.Format("15:04:05"), p.Path, raw, userOrClient(p.UserID, p.ClientID))
		return nil
	})
	on(event.TopicCollabConflict, func(e event.Event) error {
		p := e.Payload.(collab.ConflictPayload)
		printf("conflict on %s: kept local value\n", p.Path)
		return nil
	})
	on(event.TopicCollabUserJoined, func(e event.Event) error {
		p := e.Payload.(collab.PresencePayload)
		printf("+ %s joined (%s)\n", displayName(p.Presence), p.Presence.Location)
		return nil
	})
	on(event.TopicCollabUserLeft, func(e event.Event) error {
		p := e.Payload.(collab.PresencePayload)
		printf("- %s left\n", displayName(p.Presence))
		return nil
	})
	on(event.TopicChannelReconnecting, func(event.Event) error {
		printf("connection lost, reconnecting\n")
		return nil
	})

	if err := a.Collab().Enable(ctx); err != nil {
		return err
	}
	printf("watching for changes (client %s)\n", a.Client().ChannelClientID())
	printCollaborators(printf, a.Collab().ActiveCollaborators())

	if env.configPath != "" {
		go func() {
			err := config.Watch(ctx, env.configPath, func(cfg config.Config, err error) {
				if err == nil {
					a.Reconfigure(cfg)
				}
			}, env.overrides...)
			if err != nil && !errors.Is(err, context.Canceled) {
				glog.Warningf("watch: config watcher stopped: %v", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}

func printCollaborators(printf func(string, ...any), active []collab.Collaborator) {
	names := make([]string, 0, len(active))
	for _, c := range active {
		names = append(names, displayName(c))
	}
	sort.Strings(names)
	for _, n := range names {
		printf("  %s\n", n)
	}
}

func displayName(c collab.Collaborator) string {
	if c.UserName != "" {
		return c.UserName
	}
	return c.UserID
}

func userOrClient(userID, clientID string) string {
	if userID != "" {
		return userID
	}
	return clientID
}

// print writes raw JSON indented, and colored when writing to a terminal.
func (env *environment) print(raw []byte) {
	out := pretty.Pretty(raw)
	if env.color {
		out = pretty.Color(out, nil)
	}
	env.out.Write(out)
}
