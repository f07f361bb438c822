package mailsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailrules/models"
)

// fakeGmailBackend serves just enough of the Gmail REST surface for the
// label flow: list, create, and message modify.
type fakeGmailBackend struct {
	mu     sync.Mutex
	labels []*gmail.Label

	// createCode, when set, is returned for every create attempt.
	createCode int
	// listEmptyOnce hides the labels from the first list call, as if
	// another writer created them between our list and our create.
	listEmptyOnce bool

	createCalls  int
	modifyLabels []string
	nextID       int
}

func (b *fakeGmailBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/users/me/labels"):
			resp := &gmail.ListLabelsResponse{}
			if b.listEmptyOnce {
				b.listEmptyOnce = false
			} else {
				resp.Labels = b.labels
			}
			_ = json.NewEncoder(w).Encode(resp)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/users/me/labels"):
			b.createCalls++
			if b.createCode != 0 {
				w.WriteHeader(b.createCode)
				return
			}
			var in gmail.Label
			_ = json.NewDecoder(r.Body).Decode(&in)
			b.nextID++
			created := &gmail.Label{Id: fmt.Sprintf("Label_%d", b.nextID), Name: in.Name}
			b.labels = append(b.labels, created)
			_ = json.NewEncoder(w).Encode(created)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/modify"):
			var in gmail.ModifyMessageRequest
			_ = json.NewDecoder(r.Body).Decode(&in)
			b.modifyLabels = append(b.modifyLabels, in.AddLabelIds...)
			_ = json.NewEncoder(w).Encode(&gmail.Message{Id: "m1"})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newLabelTestAdapter(t *testing.T, backend *fakeGmailBackend) *gmailAdapter {
	t.Helper()

	ts := httptest.NewServer(backend.handler())
	t.Cleanup(ts.Close)

	srv, err := gmail.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)

	return &gmailAdapter{
		mailbox: &models.Mailbox{ProviderType: models.ProviderGmail},
		logger:  log.New(io.Discard, "", 0),
		service: srv,
	}
}

func TestApplyLabelCreatesOnceAndReuses(t *testing.T) {
	backend := &fakeGmailBackend{}
	a := newLabelTestAdapter(t, backend)
	msg := Message{ID: "m1"}

	require.NoError(t, a.ApplyLabel(context.Background(), msg, "Processed"))
	require.NoError(t, a.ApplyLabel(context.Background(), msg, "Processed"))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	// The second apply resolves the existing label instead of creating
	// a duplicate.
	assert.Equal(t, 1, backend.createCalls)
	assert.Equal(t, []string{"Label_1", "Label_1"}, backend.modifyLabels)
}

func TestApplyLabelResolvesAfterLostCreateRace(t *testing.T) {
	backend := &fakeGmailBackend{
		labels:        []*gmail.Label{{Id: "Label_9", Name: "Processed"}},
		listEmptyOnce: true,
		createCode:    http.StatusConflict,
	}
	a := newLabelTestAdapter(t, backend)

	require.NoError(t, a.ApplyLabel(context.Background(), Message{ID: "m1"}, "Processed"))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.createCalls)
	assert.Equal(t, []string{"Label_9"}, backend.modifyLabels)
}

func TestApplyLabelConflictWithMissingLabelFails(t *testing.T) {
	backend := &fakeGmailBackend{createCode: http.StatusConflict}
	a := newLabelTestAdapter(t, backend)

	err := a.ApplyLabel(context.Background(), Message{ID: "m1"}, "Processed")
	require.Error(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	// Never attach an empty label id.
	assert.Empty(t, backend.modifyLabels)
}
