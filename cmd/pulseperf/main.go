package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// pulseperf replays synthetic survey sessions over the websocket interface
// and prints the server's rolling latency window afterwards. Point it at a
// server running with GENAI_MODE=mock for load numbers that do not bill a
// model provider.

type options struct {
	baseURL      string
	sessions     int
	rounds       int
	chatTurns    int
	topics       []string
	stepTimeout  time.Duration
	interSession time.Duration
	verbose      bool
}

type createSessionRequest struct {
	Resume string `json:"resume,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// wsEnvelope is a flattened superset of every server message this tool
// cares about.
type wsEnvelope struct {
	Type     string `json:"type"`
	State    string `json:"state,omitempty"`
	SurveyID string `json:"survey_id,omitempty"`
	Total    int    `json:"total,omitempty"`
	Reply    string `json:"reply,omitempty"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Question struct {
		Type string `json:"type"`
	} `json:"question"`
}

type stageStats struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	P99MS   float64 `json:"p99_ms"`
}

type stageSnapshot struct {
	WindowSize int          `json:"window_size"`
	Stages     []stageStats `json:"stages"`
}

var defaultTopics = []string{
	"weekly team check-in",
	"remote work setup",
	"oncall load",
	"sprint retrospective",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulseperf: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pulseperf: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var topicsRaw string
	var stepTimeoutMS int
	var interSessionMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "pulsecheck base URL")
	flag.IntVar(&cfg.sessions, "sessions", 5, "number of synthetic sessions to replay")
	flag.IntVar(&cfg.rounds, "rounds", 2, "question rounds per session before summarizing")
	flag.IntVar(&cfg.chatTurns, "chat-turns", 1, "follow-up chat turns per session")
	flag.StringVar(&topicsRaw, "topics", "", "topics separated by '|' (optional)")
	flag.IntVar(&stepTimeoutMS, "step-timeout-ms", 30000, "timeout per server response in milliseconds")
	flag.IntVar(&interSessionMS, "inter-session-ms", 100, "delay between sessions in milliseconds")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.sessions <= 0 {
		return options{}, fmt.Errorf("sessions must be > 0")
	}
	if cfg.rounds <= 0 {
		return options{}, fmt.Errorf("rounds must be > 0")
	}
	if cfg.chatTurns < 0 {
		cfg.chatTurns = 0
	}
	if stepTimeoutMS < 1000 {
		stepTimeoutMS = 1000
	}
	if interSessionMS < 0 {
		interSessionMS = 0
	}
	cfg.stepTimeout = time.Duration(stepTimeoutMS) * time.Millisecond
	cfg.interSession = time.Duration(interSessionMS) * time.Millisecond

	if strings.TrimSpace(topicsRaw) == "" {
		cfg.topics = append([]string(nil), defaultTopics...)
	} else {
		for _, part := range strings.Split(topicsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.topics = append(cfg.topics, t)
			}
		}
		if len(cfg.topics) == 0 {
			return options{}, fmt.Errorf("topics produced no non-empty entries")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}

	for i := 0; i < cfg.sessions; i++ {
		topic := cfg.topics[i%len(cfg.topics)]
		if cfg.verbose {
			fmt.Printf("pulseperf: session %d/%d topic=%q\n", i+1, cfg.sessions, topic)
		}
		if err := replaySession(ctx, httpClient, cfg, topic); err != nil {
			return fmt.Errorf("session %d: %w", i+1, err)
		}
		if cfg.interSession > 0 && i < cfg.sessions-1 {
			time.Sleep(cfg.interSession)
		}
	}

	snap, err := fetchLatency(ctx, httpClient, cfg.baseURL)
	if err != nil {
		return fmt.Errorf("fetch latency window: %w", err)
	}
	printSnapshot(snap)
	return nil
}

func replaySession(ctx context.Context, client *http.Client, cfg options, topic string) error {
	sessionID, err := createSession(ctx, client, cfg.baseURL)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), client, cfg.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	// Initial state announcement.
	if _, err := await(conn, cfg.stepTimeout, "state_changed"); err != nil {
		return err
	}

	send := func(msg any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(cfg.stepTimeout))
		return conn.WriteJSON(msg)
	}

	if err := send(map[string]any{"type": "client_topic", "session_id": sessionID, "topic": topic}); err != nil {
		return err
	}

	for round := 0; round < cfg.rounds; round++ {
		if _, err := await(conn, cfg.stepTimeout, "state_changed"); err != nil {
			return fmt.Errorf("round %d: %w", round+1, err)
		}
		if err := answerRound(conn, cfg, sessionID); err != nil {
			return fmt.Errorf("round %d: %w", round+1, err)
		}
		action := "more"
		if round == cfg.rounds-1 {
			action = "summarize"
		}
		if err := send(map[string]any{"type": "client_control", "session_id": sessionID, "action": action}); err != nil {
			return err
		}
	}

	if _, err := await(conn, cfg.stepTimeout, "state_changed"); err != nil {
		return err
	}
	if _, err := await(conn, cfg.stepTimeout, "summary"); err != nil {
		return err
	}

	for turn := 0; turn < cfg.chatTurns; turn++ {
		msg := fmt.Sprintf("What should I focus on? (turn %d)", turn+1)
		if err := send(map[string]any{"type": "client_chat", "session_id": sessionID, "message": msg}); err != nil {
			return err
		}
		if _, err := await(conn, cfg.stepTimeout, "chat_reply"); err != nil {
			return fmt.Errorf("chat turn %d: %w", turn+1, err)
		}
	}
	return nil
}

// answerRound consumes question events and answers each until the round
// completes.
func answerRound(conn *websocket.Conn, cfg options, sessionID string) error {
	for {
		env, err := readNext(conn, cfg.stepTimeout)
		if err != nil {
			return err
		}
		switch env.Type {
		case "question":
			value := "yes"
			if env.Question.Type == "scale" {
				value = "7"
			}
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.stepTimeout))
			if err := conn.WriteJSON(map[string]any{"type": "client_answer", "session_id": sessionID, "value": value}); err != nil {
				return err
			}
		case "round_complete":
			return nil
		case "state_changed":
			// presenting -> round_complete chatter, keep reading
		case "error_event":
			return fmt.Errorf("server error %s: %s", env.Code, env.Detail)
		}
	}
}

// await reads until a message of the wanted type arrives, failing fast on
// error events.
func await(conn *websocket.Conn, timeout time.Duration, wantType string) (wsEnvelope, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return wsEnvelope{}, fmt.Errorf("timeout waiting for %s", wantType)
		}
		env, err := readNext(conn, remaining)
		if err != nil {
			return wsEnvelope{}, err
		}
		if env.Type == "error_event" {
			return wsEnvelope{}, fmt.Errorf("server error %s: %s", env.Code, env.Detail)
		}
		if env.Type == wantType {
			return env, nil
		}
	}
}

func readNext(conn *websocket.Conn, timeout time.Duration) (wsEnvelope, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return wsEnvelope{}, err
	}
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return wsEnvelope{}, fmt.Errorf("malformed server message: %w", err)
	}
	return env, nil
}

func createSession(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	payload, err := json.Marshal(createSessionRequest{})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/survey/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/survey/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/survey/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fetchLatency(ctx context.Context, client *http.Client, baseURL string) (stageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return stageSnapshot{}, err
	}
	res, err := client.Do(req)
	if err != nil {
		return stageSnapshot{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return stageSnapshot{}, err
	}
	if res.StatusCode != http.StatusOK {
		return stageSnapshot{}, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var snap stageSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return stageSnapshot{}, err
	}
	return snap, nil
}

func printSnapshot(snap stageSnapshot) {
	fmt.Printf("pulseperf: latency window (last %d samples per stage)\n", snap.WindowSize)
	if len(snap.Stages) == 0 {
		fmt.Println("pulseperf: no samples recorded")
		return
	}
	fmt.Printf("%-22s %8s %10s %10s %10s %10s\n", "stage", "samples", "avg_ms", "p50_ms", "p95_ms", "p99_ms")
	for _, st := range snap.Stages {
		fmt.Printf("%-22s %8d %10.1f %10.1f %10.1f %10.1f\n", st.Stage, st.Samples, st.AvgMS, st.P50MS, st.P95MS, st.P99MS)
	}
}
