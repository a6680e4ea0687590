package log

import (
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/grpclog"
)

// ConfigureGRPC routes the grpc library logs through the standard logger.
// grpc is chatty at info level, so its info messages are demoted to debug.
func ConfigureGRPC() {
	grpclog.SetLoggerV2(&grpcLogger{Entry: L.WithField("module", "grpc")})
}

type grpcLogger struct {
	*logrus.Entry
}

func (l *grpcLogger) Info(args ...interface{})                 { l.Entry.Debug(args...) }
func (l *grpcLogger) Infoln(args ...interface{})               { l.Entry.Debugln(args...) }
func (l *grpcLogger) Infof(format string, args ...interface{}) { l.Entry.Debugf(format, args...) }

func (l *grpcLogger) V(level int) bool {
	return l.Entry.Logger.IsLevelEnabled(logrus.Level(level) + logrus.InfoLevel)
}
