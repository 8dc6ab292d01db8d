package hook

import (
	"io"

	"github.com/sirupsen/logrus"
)

type writerHook struct {
	writer io.Writer
	levels []logrus.Level
}

func (h *writerHook) Levels() []logrus.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	serialized, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(serialized)
	return err
}

// levelsAbove returns the levels at least as severe as threshold, and the
// levels below it.
func levelsAbove(threshold logrus.Level) (severe []logrus.Level, rest []logrus.Level) {
	for _, level := range logrus.AllLevels {
		if level <= threshold {
			severe = append(severe, level)
		} else {
			rest = append(rest, level)
		}
	}
	return severe, rest
}

// RegisterSplitLogger sends warnings and worse to errWriter and everything
// else to outWriter. The logger's own output is discarded.
func RegisterSplitLogger(logger *logrus.Logger, outWriter io.Writer, errWriter io.Writer) {
	logger.SetOutput(io.Discard)

	severe, rest := levelsAbove(logrus.WarnLevel)
	logger.AddHook(&writerHook{writer: outWriter, levels: rest})
	logger.AddHook(&writerHook{writer: errWriter, levels: severe})
}
