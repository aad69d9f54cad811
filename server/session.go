package server

import (
	"fmt"

	"github.com/migadu/kiri/logger"
)

// ConnectionStatsProvider defines an interface for getting connection statistics
type ConnectionStatsProvider interface {
	GetTotalConnections() int64
	GetAuthenticatedConnections() int64
}

// Session carries the identity of one client connection for logging.
// Protocol sessions embed it.
type Session struct {
	Id         string
	RemoteAddr string
	Username   string // empty until authenticated
	ServerName string
	Protocol   string
	Stats      ConnectionStatsProvider
}

func (s *Session) logArgs(format string, args []any) []any {
	user := s.Username
	if user == "" {
		user = "none"
	}
	prefix := s.Protocol
	if s.ServerName != "" {
		prefix = fmt.Sprintf("%s-%s", s.Protocol, s.ServerName)
	}
	kv := []any{"protocol", prefix, "remote", s.RemoteAddr, "user", user, "session", s.Id}
	if s.Stats != nil {
		kv = append(kv, "conn_total", s.Stats.GetTotalConnections(), "conn_auth", s.Stats.GetAuthenticatedConnections())
	}
	return append(kv, "msg", fmt.Sprintf(format, args...))
}

func (s *Session) Log(format string, args ...any) {
	logger.Info("Session", s.logArgs(format, args)...)
}

func (s *Session) DebugLog(format string, args ...any) {
	logger.Debug("Session", s.logArgs(format, args)...)
}

func (s *Session) WarnLog(format string, args ...any) {
	logger.Warn("Session", s.logArgs(format, args)...)
}
