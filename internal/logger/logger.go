package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iurnickita/scrapmart/internal/logger/config"
	"github.com/iurnickita/scrapmart/internal/metrics"
)

// поля тела запроса, которые не попадают в лог
var redactedFields = []string{"payment_details"}

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// создаём новую конфигурацию логера
	zapcfg := zap.NewProductionConfig()
	if cfg.Development {
		zapcfg = zap.NewDevelopmentConfig()
		zapcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// устанавливаем уровень
	zapcfg.Level = lvl
	// создаём логер на основе конфигурации
	zl, err := zapcfg.Build()
	if err != nil {
		return nil, err
	}
	return zl, nil
}

// middleware-логер для входящих HTTP-запросов.
func RequestLogMdlw(h http.HandlerFunc, zaplog *zap.Logger) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		// request body
		bodyBytes, _ := io.ReadAll(r.Body)
		r.Body.Close() //  must close
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		zaplog.Info("got incoming HTTP request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("body", redact(bodyBytes)),
		)

		wl := NewResponseWriterLogger(w)

		handlerStart := time.Now()
		h(wl, r)
		handlerDuration := time.Since(handlerStart)

		metrics.HTTPRequests.WithLabelValues(r.Method, r.Pattern, strconv.Itoa(wl.statusCode)).Inc()

		// тело ответа с картинкой не пишем
		body := string(wl.body)
		if wl.Header().Get("Content-Type") == "image/png" {
			body = ""
		}
		zaplog.Info("send HTTP response",
			zap.String("code", strconv.Itoa(wl.statusCode)),
			zap.String("body", redact([]byte(body))),
			zap.String("length", strconv.Itoa(wl.length)),
			zap.String("duration", handlerDuration.String()),
		)

	})
}

// redact скрывает значения чувствительных полей на любой глубине JSON
func redact(body []byte) string {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return string(body)
	}
	if !mask(value) {
		return string(body)
	}
	redacted, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(redacted)
}

// mask заменяет чувствительные поля в объектах и массивах, сообщает, было ли изменение
func mask(value any) bool {
	changed := false
	switch v := value.(type) {
	case map[string]any:
		for key, nested := range v {
			if slices.Contains(redactedFields, key) {
				v[key] = "***"
				changed = true
				continue
			}
			if mask(nested) {
				changed = true
			}
		}
	case []any:
		for _, nested := range v {
			if mask(nested) {
				changed = true
			}
		}
	}
	return changed
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
	body       []byte
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0, []byte{}}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	wl.body = b
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}
