package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	atomic_file "github.com/natefinch/atomic"
	"github.com/nats-io/nuid"
	"github.com/pkg/errors"

	"github.com/liftbridge-io/telecipher/server/logger"
)

// instanceIDFile stores the persistent instance ID.
const instanceIDFile = ".instance_id"

// Sampler produces level readings. Returning io.EOF stops the uplink.
type Sampler interface {
	Sample() (float64, error)
}

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Uplink samples readings on an interval, encrypts them and publishes the
// payloads. Payloads that fail to publish are kept in a bounded backlog and
// retried, oldest first, before the next reading.
type Uplink struct {
	config     *Config
	instanceID string
	encoder    *Encoder
	sampler    Sampler
	publisher  Publisher
	backlog    *queue.Queue
	logger     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewUplink creates an Uplink. Zero config fields take their defaults.
func NewUplink(cfg *Config, publisher Publisher, encoder *Encoder, sampler Sampler,
	log logger.Logger) (*Uplink, error) {

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}

	instanceID, err := loadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get instance ID")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Uplink{
		config:     cfg,
		instanceID: instanceID,
		encoder:    encoder,
		sampler:    sampler,
		publisher:  publisher,
		backlog:    queue.New(int64(cfg.Backlog)),
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// Start begins periodic sampling.
func (u *Uplink) Start() {
	u.logger.Infof("Uplink started [instance_id=%s, algorithm=%s, subject=%s, interval=%s]",
		u.instanceID, u.encoder.Algorithm(), u.config.Subject, u.config.Interval)

	u.wg.Add(1)
	go u.run()
}

// Stop stops sampling and waits for the loop to exit.
func (u *Uplink) Stop() {
	u.cancel()
	u.wg.Wait()
	u.logger.Infof("Uplink stopped [pending=%d]", u.Pending())
}

// Done is closed once the sampling loop has exited, either because Stop was
// called or the sampler is exhausted.
func (u *Uplink) Done() <-chan struct{} {
	return u.done
}

// InstanceID returns the persistent ID of this device.
func (u *Uplink) InstanceID() string {
	return u.instanceID
}

// Pending returns the number of backlogged payloads.
func (u *Uplink) Pending() int {
	return int(u.backlog.Len())
}

// Publish encrypts and publishes one reading. On a transport failure the
// payload is backlogged and the error returned.
func (u *Uplink) Publish(level float64) error {
	payload, err := u.encoder.Encode(level)
	if err != nil {
		return err
	}
	payload.InstanceID = u.instanceID

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	u.logger.Debugf("Publishing reading [id=%s, level=%s]", payload.ID, payload.EncryptedLevel)
	if err := u.publisher.Publish(u.config.Subject, data); err != nil {
		u.enqueue(data)
		return errors.Wrap(err, "failed to publish reading")
	}
	return nil
}

func (u *Uplink) run() {
	defer u.wg.Done()
	defer close(u.done)

	ticker := time.NewTicker(u.config.Interval)
	defer ticker.Stop()

	for {
		if !u.tick() {
			return
		}
		select {
		case <-ticker.C:
		case <-u.ctx.Done():
			return
		}
	}
}

// tick flushes the backlog and publishes one sample. It returns false once
// the sampler is exhausted.
func (u *Uplink) tick() bool {
	u.flushBacklog()

	level, err := u.sampler.Sample()
	if err == io.EOF {
		u.logger.Info("Sampler exhausted")
		return false
	}
	if err != nil {
		u.logger.Warnf("Failed to sample level: %v", err)
		return true
	}
	if level < 0 {
		u.logger.Warnf("Discarding sensor failure reading %s", FormatLevel(level))
		return true
	}

	if err := u.Publish(level); err != nil {
		u.logger.Warnf("Reading not delivered [pending=%d]: %v", u.Pending(), err)
	}
	return true
}

func (u *Uplink) enqueue(data []byte) {
	if u.backlog.Len() >= int64(u.config.Backlog) {
		if _, err := u.backlog.Get(1); err == nil {
			u.logger.Warn("Backlog full, dropping oldest reading")
		}
	}
	if err := u.backlog.Put(data); err != nil {
		u.logger.Errorf("Failed to backlog reading: %v", err)
	}
}

func (u *Uplink) flushBacklog() {
	n := u.backlog.Len()
	if n == 0 {
		return
	}
	items, err := u.backlog.Get(n)
	if err != nil {
		u.logger.Errorf("Failed to read backlog: %v", err)
		return
	}
	for i, item := range items {
		if err := u.publisher.Publish(u.config.Subject, item.([]byte)); err != nil {
			if err := u.backlog.Put(items[i:]...); err != nil {
				u.logger.Errorf("Failed to requeue backlog: %v", err)
			}
			u.logger.Warnf("Backlog flush interrupted [pending=%d]: %v", u.Pending(), err)
			return
		}
	}
	u.logger.Infof("Flushed %d backlogged readings", len(items))
}

func loadOrCreateInstanceID(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create data directory")
	}

	idPath := filepath.Join(dataDir, instanceIDFile)
	data, err := ioutil.ReadFile(idPath)
	if err == nil {
		if id := bytes.TrimSpace(data); len(id) > 0 {
			return string(id), nil
		}
	}

	id := nuid.Next()
	if err := atomic_file.WriteFile(idPath, strings.NewReader(id)); err != nil {
		return "", errors.Wrap(err, "failed to save instance ID")
	}
	return id, nil
}
