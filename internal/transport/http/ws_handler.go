package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-coordinator/internal/app"
	"quiz-coordinator/internal/auth"
	"quiz-coordinator/internal/domain"
)

// GatewayConfig tunes per-connection delivery.
type GatewayConfig struct {
	// WriteTimeout bounds a single frame write; a connection that cannot
	// take a frame in time is dropped rather than allowed to stall others.
	WriteTimeout time.Duration
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		WriteTimeout: 10 * time.Second,
		SendBuffer:   16,
	}
}

// WSHandler terminates client connections: it authenticates against the
// external auth collaborator, decodes inbound frames into room operations
// and forwards leaderboard snapshots back out.
type WSHandler struct {
	coordinator *app.Coordinator
	verifier    auth.TokenVerifier
	upgrader    websocket.Upgrader
	cfg         GatewayConfig
	clock       clockwork.Clock
	logger      zerolog.Logger
}

func NewWSHandler(coordinator *app.Coordinator, verifier auth.TokenVerifier, cfg GatewayConfig, clock clockwork.Clock, logger zerolog.Logger) *WSHandler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultGatewayConfig().WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultGatewayConfig().SendBuffer
	}
	return &WSHandler{
		coordinator: coordinator,
		verifier:    verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Register mounts the websocket endpoint on the router.
func (h *WSHandler) Register(r *mux.Router) {
	r.HandleFunc("/ws/{quizId}", h.ServeWS)
}

// Inbound frames form a closed union discriminated by "action"; anything
// else is a protocol error that leaves the connection open.
type inboundFrame struct {
	Action         string `json:"action"`
	UserID         string `json:"user_id"`
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

const (
	actionJoin         = "join"
	actionSubmitAnswer = "submit_answer"
	actionStartQuiz    = "start_quiz"
)

type outboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func errorFrame(msg string) outboundFrame {
	return outboundFrame{Type: "error", Message: msg}
}

// questionView is the client-facing shape of a question; it must never carry
// the correct-option flag.
type questionView struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []optionView `json:"options"`
	OpenAt  time.Time    `json:"openAt,omitempty"`
	CloseAt time.Time    `json:"closeAt,omitempty"`
	Points  int          `json:"points"`
}

type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func presentQuestion(q domain.Question) questionView {
	options := make([]optionView, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, optionView{ID: opt.ID, Text: opt.Text})
	}
	return questionView{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: options,
		OpenAt:  q.OpenAt,
		CloseAt: q.CloseAt,
		Points:  q.Points,
	}
}

// ServeWS runs one connection's lifetime: auth handshake, upgrade, then the
// read loop until the peer goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := mux.Vars(r)["quizId"]
	if quizID == "" {
		http.Error(w, "missing quiz id", http.StatusBadRequest)
		return
	}

	identity, err := h.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error().Err(err).Msg("auth verification failed")
		http.Error(w, "auth unavailable", http.StatusBadGateway)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := h.logger.With().
		Str("conn_id", connID).
		Str("quiz_id", quizID).
		Str("user_id", identity.UserID).
		Logger()
	logger.Info().Msg("client connected")

	send := make(chan outboundFrame, h.cfg.SendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	var (
		participantID string
		joined        bool
		cancelSub     func()
		updatesDone   chan struct{}
	)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			send <- errorFrame("malformed frame")
			continue
		}

		switch frame.Action {
		case actionJoin:
			if joined {
				send <- outboundFrame{Type: "status", Message: "already joined"}
				continue
			}
			userID := frame.UserID
			if userID == "" {
				userID = identity.UserID
			}
			displayName := identity.Username
			if displayName == "" {
				displayName = userID
			}
			if _, err := h.coordinator.Join(r.Context(), quizID, userID, displayName); err != nil {
				send <- errorFrame(err.Error())
				continue
			}
			updates, cancel, err := h.coordinator.Subscribe(r.Context(), quizID)
			if err != nil {
				h.coordinator.Leave(r.Context(), quizID, userID)
				send <- errorFrame(err.Error())
				continue
			}
			participantID = userID
			joined = true
			cancelSub = cancel
			updatesDone = make(chan struct{})

			// Acknowledge before the pump starts so the status frame
			// precedes the initial snapshot.
			send <- outboundFrame{Type: "status", Message: "user " + participantID + " joined quiz " + quizID}

			go func() {
				defer close(updatesDone)
				for {
					select {
					case update, ok := <-updates:
						if !ok {
							return
						}
						select {
						case send <- outboundFrame{Type: "leaderboard_update", Data: update}:
						case <-closeSignals:
							return
						}
					case <-closeSignals:
						return
					}
				}
			}()

		case actionSubmitAnswer:
			if !joined {
				send <- errorFrame("join before submitting answers")
				continue
			}
			if frame.UserID != "" && frame.UserID != participantID {
				send <- errorFrame("user_id does not match joined participant")
				continue
			}
			if frame.QuestionID == "" || frame.SelectedOption == "" {
				send <- errorFrame("submit_answer requires question_id and selected_option")
				continue
			}
			result, _, err := h.coordinator.SubmitAnswer(r.Context(), quizID, participantID, domain.AnswerSubmission{
				QuestionID:  frame.QuestionID,
				OptionID:    frame.SelectedOption,
				SubmittedAt: h.clock.Now(),
			})
			if err != nil {
				send <- errorFrame(err.Error())
				continue
			}
			send <- outboundFrame{Type: "answer_result", Data: result}

		case actionStartQuiz:
			if !joined {
				send <- errorFrame("join before starting the quiz")
				continue
			}
			question, more, err := h.coordinator.AdvanceQuestion(r.Context(), quizID)
			if err != nil {
				send <- errorFrame(err.Error())
				continue
			}
			if !more {
				send <- outboundFrame{Type: "status", Message: "quiz " + quizID + " finished"}
				continue
			}
			send <- outboundFrame{Type: "question", Data: presentQuestion(question)}

		default:
			send <- errorFrame("unrecognized action")
		}
	}

	close(closeSignals)
	if joined {
		cancelSub()
		<-updatesDone
		h.coordinator.Leave(r.Context(), quizID, participantID)
	}
	close(send)
	<-writerDone
	logger.Info().Msg("client disconnected")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
