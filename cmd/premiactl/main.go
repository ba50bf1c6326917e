// Package main implements premiactl, a command line client for the premia API.
//
// Usage:
//
//	premiactl [-server URL] [-user ID] [-token T] <command> [arg]
//
// Commands:
//
//	health                  check the server is alive
//	list                    print the user's predictions
//	save <json|@file>       store a prediction
//	clear                   delete all of the user's predictions
//	profile                 print the user's profile
//	set-profile <json|@file> replace the user's profile
//	whoami                  print the user id in use
//	shell                   interactive prompt with history and completion
//
// Without -user, a user id is generated on first use and cached in
// ~/.premia_user.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/dreamware/premia/internal/client"
)

const userIDFile = ".premia_user"

var commands = []string{"health", "list", "save", "clear", "profile", "set-profile", "whoami", "shell"}

var errUsage = errors.New("usage: premiactl [-server URL] [-user ID] [-token T] <command> [arg]")

func main() {
	server := flag.String("server", getenv("PREMIA_SERVER", "http://127.0.0.1:8080"), "server URL including base path")
	user := flag.String("user", "", "user id (default: cached in ~/"+userIDFile+")")
	token := flag.String("token", os.Getenv("PREMIA_TOKEN"), "bearer token")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	userID := *user
	if userID == "" {
		var err error
		if userID, err = cachedUserID(); err != nil {
			fmt.Fprintln(os.Stderr, "premiactl:", err)
			os.Exit(1)
		}
	}

	c := &cli{
		api:     client.New(*server, client.WithToken(*token)),
		userID:  userID,
		out:     os.Stdout,
		timeout: *timeout,
	}
	if err := c.run(context.Background(), flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "premiactl:", err)
		os.Exit(1)
	}
}

type cli struct {
	api     *client.Client
	userID  string
	out     io.Writer
	timeout time.Duration
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if args[0] == "shell" {
		return c.shell(ctx)
	}
	return c.exec(ctx, args[0], strings.Join(args[1:], " "))
}

// exec runs one command; arg is the raw remainder of the line
func (c *cli) exec(ctx context.Context, cmd, arg string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	switch cmd {
	case "health":
		if err := c.api.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
		return nil

	case "whoami":
		fmt.Fprintln(c.out, c.userID)
		return nil

	case "list":
		predictions, err := c.api.ListPredictions(ctx, c.userID)
		if err != nil {
			return err
		}
		return c.print(predictions)

	case "save":
		doc, err := readPayload(arg)
		if err != nil {
			return err
		}
		doc, id, err := fillPrediction(doc, time.Now())
		if err != nil {
			return err
		}
		if err := c.api.SavePredictionDocument(ctx, c.userID, doc); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "saved prediction %s\n", id)
		return nil

	case "clear":
		if err := c.api.ClearPredictions(ctx, c.userID); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "cleared predictions")
		return nil

	case "profile":
		profile, err := c.api.GetProfile(ctx, c.userID)
		if err != nil {
			return err
		}
		return c.print(profile)

	case "set-profile":
		doc, err := readPayload(arg)
		if err != nil {
			return err
		}
		if err := c.api.UpdateProfileDocument(ctx, c.userID, doc); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "updated profile")
		return nil
	}
	return fmt.Errorf("unknown command %q (commands: %s)", cmd, strings.Join(commands, ", "))
}

func (c *cli) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *cli) shell(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "premia> ",
		HistoryFile:     historyFilePath(),
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	c.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil { // io.EOF on Ctrl+D
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(c.out, strings.Join(commands[:len(commands)-1], " | "), "| exit")
			continue
		case "shell":
			continue
		}
		if err := c.exec(ctx, cmd, strings.TrimSpace(arg)); err != nil {
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
	}
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, cmd := range commands {
		if cmd == "shell" {
			continue
		}
		items = append(items, readline.PcItem(cmd))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".premia_history")
}

// readPayload returns arg as inline JSON, or the contents of a file when
// arg starts with '@'
func readPayload(arg string) (json.RawMessage, error) {
	if arg == "" {
		return nil, errors.New("missing JSON argument")
	}
	data := []byte(arg)
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(name); err != nil {
			return nil, err
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON")
	}
	return data, nil
}

// fillPrediction sets "id" (unix millis) and "timestamp" when doc lacks them,
// leaving every other field as written, and returns the prediction id
func fillPrediction(doc json.RawMessage, now time.Time) (json.RawMessage, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		return nil, "", errors.New("invalid JSON: prediction must be an object")
	}
	if _, ok := fields["id"]; !ok {
		fields["id"], _ = json.Marshal(strconv.FormatInt(now.UnixMilli(), 10))
	}
	if _, ok := fields["timestamp"]; !ok {
		fields["timestamp"], _ = json.Marshal(now.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	var id string
	if err := json.Unmarshal(fields["id"], &id); err != nil {
		return nil, "", errors.New("invalid JSON: prediction id must be a string")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, "", err
	}
	return bytes.TrimSpace(buf.Bytes()), id, nil
}

func cachedUserID() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return loadOrCreateUserID(filepath.Join(home, userIDFile), time.Now())
}

// loadOrCreateUserID returns the id stored at path, creating it on first use
func loadOrCreateUserID(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	id := newUserID(now)
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("cache user id: %w", err)
	}
	return id, nil
}

// newUserID builds "user_{unixMillis}_{9 random chars}"
func newUserID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("user_%d_%s", now.UnixMilli(), random)
}

// getenv retrieves an environment variable with a default fallback value
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
