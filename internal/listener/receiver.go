package listener

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/messaging"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/model"
)

const defaultContentType = "application/json"

// Receiver prints received messages as plain diagnostic lines.
type Receiver struct {
	mu  sync.Mutex
	out io.Writer
}

func NewReceiver(out io.Writer) *Receiver {
	if out == nil {
		out = os.Stdout
	}
	return &Receiver{out: out}
}

func (r *Receiver) ReceiveMessage(headers map[string]string, msg model.Message) {
	contentType := headers[messaging.HeaderContentType]
	if contentType == "" {
		contentType = defaultContentType
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "The message was automatically deserialized from its JSON body")
	fmt.Fprintln(r.out, "contentType = "+contentType)
	fmt.Fprintln(r.out, msg)

	log.Debug().
		Str("message_id", headers[messaging.HeaderMessageID]).
		Int("id", msg.ID).
		Msg("Message received")
}

// ReceiveMessageMap handles bodies shaped as {"key": {"id":..,"text":..}, ...}.
func (r *Receiver) ReceiveMessageMap(headers map[string]string, msgs map[string]model.Message) {
	keys := make([]string, 0, len(msgs))
	for k := range msgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		fmt.Fprintln(r.out, "Entry Key = "+k)
		fmt.Fprintln(r.out, "Entry Value = "+msgs[k].String())
	}

	log.Debug().
		Str("message_id", headers[messaging.HeaderMessageID]).
		Int("entries", len(msgs)).
		Msg("Message map received")
}
