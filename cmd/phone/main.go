// Package main provides the phone client: a terminal rendition of the
// staging, incoming call and in-call screens plus scripting commands.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	apiconnect "github.com/osa030/exitcall/internal/api/connect"
	"github.com/osa030/exitcall/internal/app/elapsed"
	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/app/screen"
	"github.com/osa030/exitcall/internal/app/upload"
	"github.com/osa030/exitcall/internal/domain/call"
	"github.com/osa030/exitcall/internal/infra/logger"
	"github.com/osa030/exitcall/internal/infra/redisnav"
)

var (
	app     = kingpin.New("exitcall-phone", "ExitCall phone client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("EXITCALL_SERVER").String()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	settingsCmd     = app.Command("settings", "Show or change saved settings")
	settingsShowCmd = settingsCmd.Command("show", "Show saved settings").Default()
	settingsSetCmd  = settingsCmd.Command("set", "Change saved settings")
	settingsPairs   = settingsSetCmd.Arg("pairs", "key=value pairs (selected_caller, delay_seconds, ringtone, custom_ringtone_url)").Required().Strings()

	startCmd       = app.Command("start", "Start a simulated call")
	startCaller    = startCmd.Flag("caller", "Caller name").String()
	startDelay     = startCmd.Flag("delay", "Delay in seconds").Int()
	startRingtone  = startCmd.Flag("ringtone", "Built-in ringtone").String()
	startCustomURL = startCmd.Flag("custom-url", "Custom ringtone URL").String()

	acceptCmd  = app.Command("accept", "Accept an incoming call")
	acceptID   = acceptCmd.Arg("session-id", "Session ID").Required().String()
	declineCmd = app.Command("decline", "Decline an incoming call")
	declineID  = declineCmd.Arg("session-id", "Session ID").Required().String()
	endCmd     = app.Command("end", "End an active call")
	endID      = endCmd.Arg("session-id", "Session ID").Required().String()

	sessionsCmd   = app.Command("sessions", "List recent sessions")
	sessionsLimit = sessionsCmd.Flag("limit", "Maximum sessions to list").Default("20").Int()

	expireCmd       = app.Command("expire", "Expire stale sessions")
	expireOlderThan = expireCmd.Flag("older-than", "Age in seconds (0 uses the server default)").Default("0").Int()

	uploadCmd  = app.Command("upload", "Upload a custom ringtone")
	uploadFile = uploadCmd.Arg("file", "Audio file").Required().ExistingFile()

	watchCmd   = app.Command("watch", "Show the phone screens and read actions from stdin")
	watchRedis = watchCmd.Flag("redis", "Follow navigation from a Redis relay instead of the server stream").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	client := apiconnect.NewClient(http.DefaultClient, *server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case settingsShowCmd.FullCommand():
		err = showSettings(ctx, client)
	case settingsSetCmd.FullCommand():
		err = setSettings(ctx, client, *settingsPairs)
	case startCmd.FullCommand():
		err = startCall(ctx, client)
	case acceptCmd.FullCommand():
		err = printSession(client.Accept(ctx, *acceptID))
	case declineCmd.FullCommand():
		err = printSession(client.Decline(ctx, *declineID))
	case endCmd.FullCommand():
		err = printSession(client.EndCall(ctx, *endID))
	case sessionsCmd.FullCommand():
		err = listSessions(ctx, client, *sessionsLimit)
	case expireCmd.FullCommand():
		err = expire(ctx, client, *expireOlderThan)
	case uploadCmd.FullCommand():
		err = uploadRingtone(ctx, *server, *uploadFile)
	case watchCmd.FullCommand():
		err = watch(ctx, client, os.Stdin, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func showSettings(ctx context.Context, client *apiconnect.Client) error {
	settings, err := client.GetSettings(ctx)
	if err != nil {
		return err
	}
	printSettings(settings)
	return nil
}

func setSettings(ctx context.Context, client *apiconnect.Client, pairs []string) error {
	patch, err := parsePatch(pairs)
	if err != nil {
		return err
	}
	settings, err := client.SaveSettings(ctx, patch)
	if err != nil {
		return err
	}
	printSettings(settings)
	return nil
}

// parsePatch decodes key=value pairs into a settings patch.
func parsePatch(pairs []string) (call.SettingsPatch, error) {
	raw := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return call.SettingsPatch{}, errors.Newf("expected key=value, got %q", pair)
		}
		raw[strings.TrimSpace(key)] = value
	}

	var patch call.SettingsPatch
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &patch,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return call.SettingsPatch{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return call.SettingsPatch{}, errors.Wrap(err, "invalid settings")
	}
	return patch, nil
}

func printSettings(s call.Settings) {
	fmt.Printf("Caller:   %s\n", s.SelectedCaller)
	fmt.Printf("Delay:    %ds\n", s.DelaySeconds)
	fmt.Printf("Ringtone: %s\n", s.Ringtone)
	if s.CustomRingtoneURL != "" {
		fmt.Printf("Custom:   %s\n", s.CustomRingtoneURL)
	}
}

func startCall(ctx context.Context, client *apiconnect.Client) error {
	req := &apiconnect.StartCallRequest{}
	if *startCaller != "" {
		req.Caller = startCaller
	}
	if *startDelay != 0 {
		req.DelaySeconds = startDelay
	}
	if *startRingtone != "" {
		req.Ringtone = startRingtone
	}
	if *startCustomURL != "" {
		req.CustomRingtoneURL = startCustomURL
	}

	resp, err := client.StartCall(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Scheduled call from %s: session=%s rings at %s\n",
		resp.Session.Caller, resp.Session.ID, resp.FiresAt.Local().Format("15:04:05"))
	return nil
}

func printSession(s *call.Session, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(formatSession(s))
	return nil
}

func formatSession(s *call.Session) string {
	line := fmt.Sprintf("%s  %-8s  %-7s  started=%s", s.ID, s.Status, s.Caller, s.StartTime.Local().Format("2006-01-02 15:04:05"))
	if s.Status == call.StatusEnded && s.ActivatedTime != nil {
		line += "  duration=" + elapsed.Format(int(s.Duration().Seconds()))
	}
	return line
}

func listSessions(ctx context.Context, client *apiconnect.Client, limit int) error {
	sessions, err := client.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Println(formatSession(s))
	}
	return nil
}

func expire(ctx context.Context, client *apiconnect.Client, olderThan int) error {
	expired, err := client.ExpireStale(ctx, olderThan)
	if err != nil {
		return err
	}
	fmt.Printf("Expired %d sessions\n", len(expired))
	for _, s := range expired {
		fmt.Println(formatSession(s))
	}
	return nil
}

// uploadRingtone posts the file to the upload endpoint and prints the saved URL.
func uploadRingtone(ctx context.Context, serverURL, path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read ringtone")
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open ringtone")
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, upload.FormField, filepath.Base(path)))
	header.Set("Content-Type", mtype.String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return errors.Wrap(err, "failed to read ringtone")
	}
	if err := mw.Close(); err != nil {
		return err
	}

	endpoint := strings.TrimSuffix(serverURL, "/") + "/ringtones"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var e upload.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return errors.Newf("upload rejected: status=%d %s", resp.StatusCode, e.Error)
	}
	var ok upload.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return errors.Wrap(err, "failed to decode upload response")
	}
	fmt.Printf("Custom ringtone saved: %s\n", ok.URL)
	return nil
}

// watch renders navigation requests and performs actions typed on in.
func watch(ctx context.Context, client *apiconnect.Client, in io.Reader, out io.Writer) error {
	router := screen.NewRouter(client, out, elapsed.New())
	defer router.Close()

	dispatch := func(req *navigation.Request) {
		if err := router.Dispatch(ctx, req); err != nil {
			zlog.Warn().Err(err).Msg("Failed to show screen")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if *watchRedis != "" {
			errCh <- followRedis(ctx, *watchRedis, dispatch)
			return
		}
		errCh <- client.SubscribeNavigation(ctx, dispatch)
	}()

	fmt.Fprintln(out, "Actions: start, accept, decline, end (Ctrl+C to quit)")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if _, err := router.Do(ctx, screen.Action(line)); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

func followRedis(ctx context.Context, addr string, fn func(*navigation.Request)) error {
	relay, err := redisnav.Dial(ctx, redisnav.Config{Addr: addr})
	if err != nil {
		return err
	}
	defer relay.Close()

	current, err := relay.Current(ctx)
	if err != nil {
		return err
	}
	if current != nil {
		fn(current)
	}
	return relay.Follow(ctx, fn)
}
