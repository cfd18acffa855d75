package livehttp

import (
	"bufio"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"goldsweep/internal/scanner"
)

// LatestSource 提供扫描器最近的结果，scanner.Latest 实现了它。
type LatestSource interface {
	Signal() (scanner.Report, bool)
	Scan() (scanner.Report, bool)
}

// Router 暴露实时扫描相关的查询接口。
type Router struct {
	Latest  LatestSource
	LogPath string
}

func NewRouter(latest LatestSource, logPath string) *Router {
	return &Router{Latest: latest, LogPath: strings.TrimSpace(logPath)}
}

// Register 挂载 /signals/latest、/signals/scan 与 /logs。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/signals/latest", r.handleLatestSignal)
	group.GET("/signals/scan", r.handleLatestScan)
	group.GET("/logs", r.handleLogs)
}

func (r *Router) handleLatestSignal(c *gin.Context) {
	if r.Latest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "扫描器未启用"})
		return
	}
	rep, ok := r.Latest.Signal()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signal yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  rep.Symbol,
		"at":      rep.At,
		"session": rep.Session,
		"signal":  rep.Decision.Signal,
	})
}

func (r *Router) handleLatestScan(c *gin.Context) {
	if r.Latest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "扫描器未启用"})
		return
	}
	rep, ok := r.Latest.Scan()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan": rep})
}

func (r *Router) handleLogs(c *gin.Context) {
	if r.LogPath == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置日志文件"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 {
		limit = 200
	}
	if limit > 5000 {
		limit = 5000
	}
	lines, err := readLastLines(r.LogPath, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

const maxLogLineSize = 1024 * 1024

func readLastLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	lines := make([]string, 0, limit)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
