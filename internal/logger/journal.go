package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 信号/成交日志单独写入 journal 文件，避免与运行日志混杂。
var (
	journalMu  sync.Mutex
	journalLog *log.Logger
)

// JournalSection 是 journal 记录中的一个小节。
type JournalSection struct {
	Title string
	Body  string
}

// SetJournalWriter 设置 journal 输出；传 nil 关闭。
func SetJournalWriter(w io.Writer) {
	journalMu.Lock()
	defer journalMu.Unlock()
	if w == nil {
		journalLog = nil
		return
	}
	journalLog = log.New(w, "", log.LstdFlags)
}

// JournalEnabled 返回是否配置了 journal 输出。
func JournalEnabled() bool {
	journalMu.Lock()
	defer journalMu.Unlock()
	return journalLog != nil
}

// Journal 以 [JOURNAL][kind][subject] 头写入一条多段记录。
func Journal(kind, subject string, sections ...JournalSection) {
	journalMu.Lock()
	l := journalLog
	journalMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[JOURNAL]")
	for _, tag := range []string{kind, subject} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(strings.ToUpper(t))
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}
