package crawler

import (
	"strconv"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// Task is one unit of consumer work: a notice summary plus its position in
// the list. Created by the producer, consumed exactly once by a worker.
type Task struct {
	Notice      *bidnotice.BidNotice
	PageNum     int
	IndexInPage int
}

// Info returns the task identity for failed-item records
func (t Task) Info() map[string]string {
	return map[string]string{
		"bid_notice_id": t.Notice.BidNoticeID,
		"title":         t.Notice.Title,
		"page":          strconv.Itoa(t.PageNum),
		"index":         strconv.Itoa(t.IndexInPage),
	}
}
