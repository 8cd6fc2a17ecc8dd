package middleware

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

const (
	AlgorithmGzip       = "gzip"
	AlgorithmDeflate    = "deflate"
	AlgorithmBrotli     = "br"
	DefaultLevel        = 6
	DefaultMinSize      = 1024
	MinCompressionRatio = 0.05
)

type CompressionMiddleware struct {
	logger            types.Logger
	compressionConfig *CompressionConfig
	name              string
	weight            int
	gzipWriterPool    sync.Pool
	deflateWriterPool sync.Pool
	brotliWriterPool  sync.Pool
	bufferPool        sync.Pool
}

type CompressionConfig struct {
	Algorithms   []string `json:"algorithms"`
	Level        int      `json:"level"`
	MinSize      int      `json:"min_size"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(config types.ConfigManager, logger types.Logger) *CompressionMiddleware {
	item := itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Compression })

	compressionConfig := &CompressionConfig{
		Algorithms: []string{AlgorithmBrotli, AlgorithmGzip, AlgorithmDeflate},
		Level:      DefaultLevel,
		MinSize:    DefaultMinSize,
		AllowedTypes: []string{
			"application/json",
			"application/xml",
			"application/javascript",
			"text/*",
		},
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, compressionConfig); err != nil {
			logger.Error("Failed to unmarshal compression middleware config", zap.Error(err))
		}
	}

	if compressionConfig.Level < 1 || compressionConfig.Level > 9 {
		logger.Warn("Invalid compression level, using default", zap.Int("level", compressionConfig.Level))
		compressionConfig.Level = DefaultLevel
	}

	cm := &CompressionMiddleware{
		name:              "compression",
		weight:            item.Weight,
		logger:            logger,
		compressionConfig: compressionConfig,
	}

	cm.initializePools()

	return cm
}

func (c *CompressionMiddleware) Name() string { return c.name }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	algorithm := c.negotiate(ctx.Request.Header.Peek("Accept-Encoding"))
	if algorithm == "" {
		return next(ctx)
	}

	if err := next(ctx); err != nil {
		return err
	}

	if len(ctx.Response.Header.Peek("Content-Encoding")) > 0 {
		return nil
	}

	if !c.shouldCompress(ctx.Response.Header.ContentType()) {
		return nil
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinSize {
		return nil
	}

	compressed, err := c.compress(algorithm, body)
	if err != nil {
		c.logger.Warn("Compression failed", zap.String("algorithm", algorithm), zap.Error(err))
		return nil
	}

	if 1.0-float64(len(compressed))/float64(len(body)) < MinCompressionRatio {
		return nil
	}

	ctx.Response.Header.SetContentEncoding(algorithm)
	ctx.Response.Header.AddBytesV("Vary", []byte("Accept-Encoding"))
	ctx.Response.SetBody(compressed)

	return nil
}

// negotiate picks the first configured algorithm the client accepts.
func (c *CompressionMiddleware) negotiate(acceptEncoding []byte) string {
	if len(acceptEncoding) == 0 {
		return ""
	}

	accepted := make(map[string]bool)
	for _, part := range strings.Split(string(acceptEncoding), ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		accepted[strings.ToLower(strings.TrimSpace(token))] = true
	}

	for _, algorithm := range c.compressionConfig.Algorithms {
		if accepted[algorithm] || accepted["*"] {
			return algorithm
		}
	}

	return ""
}

func (c *CompressionMiddleware) shouldCompress(contentType []byte) bool {
	if len(contentType) == 0 {
		return false
	}

	ctStr := string(contentType)
	if semicolon := strings.Index(ctStr, ";"); semicolon != -1 {
		ctStr = ctStr[:semicolon]
	}
	ctStr = strings.TrimSpace(strings.ToLower(ctStr))

	for _, allowedType := range c.compressionConfig.AllowedTypes {
		if allowedType == ctStr {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowedType, "*"); ok && strings.HasPrefix(ctStr, prefix) {
			return true
		}
	}
	return false
}

func (c *CompressionMiddleware) compress(algorithm string, data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	var writer io.WriteCloser
	switch algorithm {
	case AlgorithmBrotli:
		w := c.brotliWriterPool.Get().(*brotli.Writer)
		w.Reset(buf)
		defer c.brotliWriterPool.Put(w)
		writer = w
	case AlgorithmGzip:
		w := c.gzipWriterPool.Get().(*gzip.Writer)
		w.Reset(buf)
		defer c.gzipWriterPool.Put(w)
		writer = w
	default:
		w := c.deflateWriterPool.Get().(*flate.Writer)
		w.Reset(buf)
		defer c.deflateWriterPool.Put(w)
		writer = w
	}

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (c *CompressionMiddleware) initializePools() {
	level := c.compressionConfig.Level

	c.gzipWriterPool = sync.Pool{
		New: func() interface{} {
			writer, _ := gzip.NewWriterLevel(nil, level)
			return writer
		},
	}

	c.deflateWriterPool = sync.Pool{
		New: func() interface{} {
			writer, _ := flate.NewWriter(nil, level)
			return writer
		},
	}

	c.brotliWriterPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewWriterLevel(nil, level)
		},
	}

	c.bufferPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		},
	}
}
