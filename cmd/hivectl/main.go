package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/hive/internal/natsbus"
	"github.com/mtzanidakis/hive/internal/navigator"
	"github.com/mtzanidakis/hive/internal/swarm"
	"github.com/mtzanidakis/hive/internal/timeouts"
)

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

// buildEvent turns a command and its flags into a swarm input event.
func buildEvent(swarmID, command string, args map[string]string) (swarm.Event, error) {
	ev := swarm.Event{
		ID:        uuid.New().String(),
		SwarmID:   swarmID,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{},
	}
	set := func(key, flag string) {
		if v := args[flag]; v != "" {
			ev.Data[key] = v
		}
	}

	switch command {
	case "start":
		ev.Type = swarm.EventSwarmStarted
		set("chatId", "chat")
		set("goal", "goal")
		set("userId", "user")
	case "say":
		ev.Type = swarm.EventExternalMessage
		set("message", "message")
		set("userId", "user")
	case "approve":
		ev.Type = swarm.EventToolApproved
		set("toolCallId", "call")
	case "reject":
		ev.Type = swarm.EventToolRejected
		set("toolCallId", "call")
		set("reason", "reason")
	case "ready":
		ev.Type = swarm.EventTaskReady
		set("reason", "reason")
		set("taskId", "task")
	default:
		return swarm.Event{}, fmt.Errorf("unknown command: %s", command)
	}
	if err := ev.Validate(); err != nil {
		return swarm.Event{}, err
	}
	return ev, nil
}

func sendEvent(client *natsbus.Client, ev swarm.Event) error {
	if err := client.PublishJSON(natsbus.TopicSwarmInput(ev.SwarmID), ev); err != nil {
		return err
	}
	return client.Flush()
}

func sendLocation(client *natsbus.Client, swarmID string, rep timeouts.LocationReport) error {
	if err := client.PublishJSON(natsbus.TopicSwarmLocation(swarmID), rep); err != nil {
		return err
	}
	return client.Flush()
}

// buildLocation describes the node a swarm routine reached. With --file the
// routine itself travels along so the gateway can validate it first.
func buildLocation(args map[string]string) (timeouts.LocationReport, error) {
	rep := timeouts.LocationReport{
		Navigator: args["navigator"],
		Location:  navigator.NewLocation(args["routine"], args["node"]),
	}
	if path := args["file"]; path != "" {
		routine, err := navigator.LoadRoutineFile(path)
		if err != nil {
			return rep, err
		}
		rep.Routine = routine
	} else if rep.Navigator == "" {
		return rep, fmt.Errorf("--navigator or --file is required")
	}
	return rep, nil
}

// serveAgent answers every orchestration request with a successful turn.
func serveAgent(client *natsbus.Client, reply string) error {
	return client.ServeOrchestration(func(req swarm.ConversationRequest) swarm.ConversationResult {
		fmt.Printf("  %s  %s  %s\n", req.Context.SwarmID, req.Trigger.Type, req.Strategy)
		res := swarm.ConversationResult{Success: true}
		if reply != "" {
			res.Messages = []string{reply}
		}
		return res
	})
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, `  hivectl start   --swarm ID --chat ID [--goal "..."] [--user ID]`)
	fmt.Fprintln(os.Stderr, `  hivectl say     --swarm ID --message "..." [--user ID]`)
	fmt.Fprintln(os.Stderr, `  hivectl approve --swarm ID --call ID`)
	fmt.Fprintln(os.Stderr, `  hivectl reject  --swarm ID --call ID [--reason "..."]`)
	fmt.Fprintln(os.Stderr, `  hivectl ready   --swarm ID [--task ID] [--reason "..."]`)
	fmt.Fprintln(os.Stderr, `  hivectl locate  --swarm ID --routine ID --node ID (--navigator TYPE | --file PATH)`)
	fmt.Fprintln(os.Stderr, `  hivectl agent   [--reply "..."]`)
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	if len(os.Args) < 2 {
		usage()
	}

	command := os.Args[1]
	args := parseArgs(os.Args[2:])

	client, err := natsbus.NewClientFromURL(natsURL)
	if err != nil {
		fatal("%v", err)
	}
	defer client.Close()

	switch command {
	case "agent":
		if err := serveAgent(client, args["reply"]); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Serving orchestration requests. Ctrl-C to stop.")
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

	case "locate":
		if args["swarm"] == "" || args["node"] == "" {
			fatal("--swarm and --node are required")
		}
		rep, err := buildLocation(args)
		if err != nil {
			fatal("%v", err)
		}
		if err := sendLocation(client, args["swarm"], rep); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Location reported.")

	default:
		if args["swarm"] == "" {
			fatal("--swarm is required")
		}
		ev, err := buildEvent(args["swarm"], command, args)
		if err != nil {
			fatal("%v", err)
		}
		if err := sendEvent(client, ev); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Event sent: %s (%s)\n", ev.ID, ev.Type)
	}
}
