package domain

import "errors"

var (
	// ErrUnauthorized is returned when the auth handshake fails; it is the
	// only condition that closes a connection.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrProtocol marks a malformed or unrecognized frame; wrap it with detail.
	ErrProtocol = errors.New("protocol error")
	// ErrRoomNotFound is returned when a room has not been created and
	// auto-creation is disabled.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomClosed is returned for any operation on a room past its terminal state.
	ErrRoomClosed = errors.New("room closed")
	// ErrUnknownParticipant is returned when a user acts before joining.
	ErrUnknownParticipant = errors.New("participant not joined")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
)
