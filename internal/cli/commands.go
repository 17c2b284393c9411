package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/delivery"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/services"
)

const shownLogs = 10

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	dimColor   = color.New(color.Faint)
)

var errInvalidServerURL = errors.New("server url must be an absolute http or https url")

func stateColor(s services.State) *color.Color {
	switch s {
	case services.StateMonitoring:
		return okColor
	case services.StateError:
		return errorColor
	default:
		return dimColor
	}
}

func (a *App) prompt() string {
	st := a.engine.Status()
	return "(" + stateColor(st.State).Sprint(st.Text) + ")"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (a *App) Status(ctx context.Context) error {
	st := a.engine.Status()
	s := a.app.Settings.Load(ctx)

	server := s.ServerURL
	if server == "" {
		server = "not configured"
	}
	last := "never"
	if !st.LastSuccess.IsZero() {
		last = st.LastSuccess.Local().Format("15:04")
	}
	network := "online"
	if !a.isOnline() {
		network = "offline"
	}

	printlnFn("Status:             " + stateColor(st.State).Sprint(st.Text))
	printlnFn(fmt.Sprintf("Beats sent:         %d", st.BeatCount))
	printlnFn("Last beat:          " + last)
	printlnFn("Server:             " + server)
	printlnFn("Device:             " + s.DeviceName)
	printlnFn("Network:            " + network)
	printlnFn("Activity detection: " + onOff(s.ActivityDetection))
	printlnFn("Server checks:      " + onOff(s.PushEnabled))
	printlnFn("Notifications:      " + onOff(a.app.Settings.NotificationsPermitted(ctx)))

	pending, err := a.app.Store.PendingIntents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending retries: %w", err)
	}
	if len(pending) > 0 {
		printlnFn(warnColor.Sprintf("Pending retries:    %d", len(pending)))
	}
	return nil
}

func (a *App) Enable(ctx context.Context) error {
	a.ctrl.Lock()
	defer a.ctrl.Unlock()

	s := a.app.Settings.Load(ctx)
	if s.ServerURL == "" || s.AuthToken == "" {
		return fmt.Errorf("%w: set the server url and token with 'config'", common.ErrNotConfigured)
	}
	if _, err := a.app.Settings.Update(ctx, func(s *models.Settings) { s.Enabled = true }); err != nil {
		return err
	}
	a.app.Journal.Record(ctx, "Heartbeat monitoring enabled")
	a.engine.Start(ctx)
	return nil
}

func (a *App) Disable(ctx context.Context) error {
	a.ctrl.Lock()
	defer a.ctrl.Unlock()

	a.engine.Stop()
	if _, err := a.app.Settings.Update(ctx, func(s *models.Settings) { s.Enabled = false }); err != nil {
		return err
	}
	a.app.Journal.Record(ctx, "Heartbeat monitoring disabled")
	return nil
}

// Config asks for each setting in turn. An empty answer keeps the current
// value.
func (a *App) Config(ctx context.Context) error {
	s := a.app.Settings.Load(ctx)

	server, err := GetSimpleText(a.reader, withDefault("Server URL", s.ServerURL), a.out)
	if err != nil {
		return err
	}
	if server != "" {
		u, err := url.Parse(server)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errInvalidServerURL
		}
		s.ServerURL = strings.TrimRight(server, "/")
	}

	device, err := GetSimpleText(a.reader, withDefault("Device name", s.DeviceName), a.out)
	if err != nil {
		return err
	}
	if device != "" {
		s.DeviceName = device
	}

	tokenPrompt := "Auth token"
	if s.AuthToken != "" {
		tokenPrompt += " (empty keeps current)"
	}
	token, err := GetSecret(tokenPrompt, a.out)
	if err != nil {
		return err
	}
	if token != "" {
		s.AuthToken = token
	}

	vapidCurrent := ""
	if s.VAPIDPublicKey != "" {
		vapidCurrent = "set"
	}
	vapid, err := GetSimpleText(a.reader, withDefault("VAPID public key", vapidCurrent), a.out)
	if err != nil {
		return err
	}
	if vapid != "" {
		if _, err := services.DecodeApplicationServerKey(vapid); err != nil {
			return err
		}
		s.VAPIDPublicKey = vapid
	}

	activity, err := GetSimpleText(a.reader, withDefault("Activity detection (on/off)", onOff(s.ActivityDetection)), a.out)
	if err != nil {
		return err
	}
	if activity != "" {
		on, ok := parseToggle([]string{activity})
		if !ok {
			return fmt.Errorf("invalid value %q, expected on or off", activity)
		}
		s.ActivityDetection = on
	}

	if err := a.app.Settings.Save(ctx, s); err != nil {
		return err
	}
	a.app.Journal.Record(ctx, "Configuration saved")
	printlnFn(okColor.Sprint("Configuration saved"))

	if s.Enabled {
		a.ctrl.Lock()
		a.engine.Stop()
		a.engine.Start(ctx)
		a.ctrl.Unlock()
	}
	return nil
}

// Test sends one heartbeat now, under the same rules as the timer.
func (a *App) Test(ctx context.Context) error {
	res := a.engine.Tick(ctx)
	switch res.Status {
	case services.BeatSent:
		printlnFn(okColor.Sprintf("Heartbeat sent (%d total)", res.Count))
	case services.BeatFailed:
		if res.Report.Queued() {
			printlnFn(warnColor.Sprint("Heartbeat queued for background sync"))
		}
		return fmt.Errorf("heartbeat failed: %s", describe(res.Report.First()))
	case services.BeatIdle:
		printlnFn("No recent activity, heartbeat skipped")
	case services.BeatDisabled:
		printlnFn("Monitoring is disabled or not configured")
	case services.BeatInFlight:
		printlnFn("A heartbeat is already in flight")
	}
	return nil
}

func describe(r delivery.Result) string {
	if r.StatusCode != 0 {
		return fmt.Sprintf("server returned %d", r.StatusCode)
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return "unknown error"
}

func (a *App) Logs(ctx context.Context) error {
	entries, err := a.app.Store.RecentLogs(ctx, shownLogs)
	if err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}
	if len(entries) == 0 {
		printlnFn("No log entries")
		return nil
	}
	for _, e := range entries {
		printlnFn(dimColor.Sprint(e.Timestamp.Local().Format("15:04:05")) + " - " + e.Message)
	}
	return nil
}

func (a *App) Notifications(ctx context.Context, on bool) error {
	if err := a.app.Settings.SetNotificationsPermitted(ctx, on); err != nil {
		return err
	}
	if on {
		a.app.Journal.Record(ctx, "Notifications enabled")
	} else {
		a.app.Journal.Record(ctx, "Notifications disabled")
	}
	printlnFn("Notifications " + onOff(on))
	return nil
}

// Push turns server-initiated checks on or off.
func (a *App) Push(ctx context.Context, on bool) error {
	if !on {
		if err := a.app.Push.Unsubscribe(ctx); err != nil {
			return err
		}
		printlnFn("Server checks off")
		return nil
	}

	a.app.Journal.Record(ctx, "Processing server checks request...")
	if _, err := a.app.Push.Subscribe(ctx); err != nil {
		if errors.Is(err, common.ErrNoVAPIDKey) {
			return fmt.Errorf("%w: set it with 'config'", err)
		}
		return err
	}
	printlnFn(okColor.Sprint("Server checks on"))
	return nil
}
