package repository

import (
	"mixdown/command"
	"mixdown/logger"
	"mixdown/model"
)

// AsyncPersister implements command.Persister without blocking the engine
// goroutine: entries go into a buffered queue and a writer goroutine drains
// them. A full queue drops the durable write, never the in-memory apply.
type AsyncPersister struct {
	repo  DocumentRepository
	queue chan persistJob
	done  chan struct{}
}

type persistJob struct {
	entry command.Entry
	doc   *model.Document
}

// NewAsyncPersister starts the writer goroutine.
func NewAsyncPersister(repo DocumentRepository) *AsyncPersister {
	p := &AsyncPersister{
		repo:  repo,
		queue: make(chan persistJob, 1024),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// SaveEntry implements command.Persister.
func (p *AsyncPersister) SaveEntry(entry command.Entry, doc *model.Document) {
	select {
	case p.queue <- persistJob{entry: entry, doc: doc}:
	default:
		logger.Warn("persistence queue full, dropping durable write",
			logger.Uint64("seq", entry.Seq),
			logger.Uint64("revision", entry.RevAfter))
	}
}

// Close flushes queued writes and stops the writer.
func (p *AsyncPersister) Close() {
	close(p.queue)
	<-p.done
}

func (p *AsyncPersister) run() {
	defer close(p.done)
	for job := range p.queue {
		// Undo and redo commits carry no journal entry, only the document.
		if job.entry.Seq != 0 {
			if err := p.repo.SaveJournalEntry(job.entry); err != nil {
				logger.Error("persist journal entry",
					logger.Uint64("seq", job.entry.Seq),
					logger.ErrorField(err))
			}
		}
		if err := p.repo.SaveRevision(job.doc); err != nil {
			logger.Error("persist revision",
				logger.Uint64("revision", job.doc.Revision),
				logger.ErrorField(err))
		}
	}
}
