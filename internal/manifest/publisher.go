package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PolarWolf314/rimu/internal/backend"
	"github.com/PolarWolf314/rimu/internal/envelope"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"
)

// Prefix is the backend namespace of published manifests. Objects live at
// manifests/<device-id>/<sequence>.
const Prefix = "manifests/"

const seqWidth = 20

// Published is one manifest object read back from the backend. Err is set
// when the object could not be opened; other objects are unaffected.
type Published struct {
	Key    string
	Device string
	Seq    uint64
	Signed *Signed
	Err    error
}

// Publisher stores signed manifests encrypted at rest. Manifests are sealed
// with a random nonce under their own key label, so two identical manifests
// are indistinguishable to the storage provider.
type Publisher struct {
	Backend backend.Backend
	Session *keys.Session
	Cipher  envelope.Cipher
	Logger  logger.Logger
}

// Publish stores s as the next manifest of device and returns its key.
func (p *Publisher) Publish(ctx context.Context, device string, s *Signed) (string, error) {
	if device == "" || strings.Contains(device, "/") {
		return "", fmt.Errorf("invalid device id %q", device)
	}

	existing, err := p.Backend.List(ctx, Prefix+device+"/")
	if err != nil {
		return "", err
	}
	var next uint64 = 1
	for _, k := range existing {
		if _, seq, err := parseKey(k); err == nil && seq >= next {
			next = seq + 1
		}
	}
	key := fmt.Sprintf("%s%s/%0*d", Prefix, device, seqWidth, next)

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding signed manifest: %w", err)
	}
	k, err := p.Session.Key(keys.LabelManifestEncryption)
	if err != nil {
		return "", err
	}
	env, err := p.Cipher.SealRandom(k, data, []byte(key))
	if err != nil {
		return "", err
	}
	blob, err := env.MarshalBinary()
	if err != nil {
		return "", err
	}
	if err := p.Backend.Put(ctx, key, blob); err != nil {
		return "", err
	}

	p.Logger.Debugf("published manifest %s", key)
	return key, nil
}

// Fetch opens every published manifest. A manifest that fails to open is
// reported in its own Err field and does not stop the others.
func (p *Publisher) Fetch(ctx context.Context) ([]Published, error) {
	keyList, err := p.Backend.List(ctx, Prefix)
	if err != nil {
		return nil, err
	}

	var out []Published
	for _, key := range keyList {
		device, seq, err := parseKey(key)
		if err != nil {
			p.Logger.Warnf("skipping foreign object %s", key)
			continue
		}
		pub := Published{Key: key, Device: device, Seq: seq}
		pub.Signed, pub.Err = p.open(ctx, key)
		if pub.Err != nil {
			pub.Err = &kerrors.ManifestError{ID: key, Device: device, Err: pub.Err}
		}
		out = append(out, pub)
	}
	return out, nil
}

// Delete removes a published manifest, used when pruning history.
func (p *Publisher) Delete(ctx context.Context, key string) error {
	return p.Backend.Delete(ctx, key)
}

func (p *Publisher) open(ctx context.Context, key string) (*Signed, error) {
	blob, err := p.Backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	env, err := envelope.Parse(blob)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(env.AssociatedData, []byte(key)) {
		return nil, fmt.Errorf("%w: manifest sealed for another location", kerrors.ErrAuthentication)
	}

	k, err := p.Session.Key(keys.LabelManifestEncryption)
	if err != nil {
		return nil, err
	}
	data, err := p.Cipher.Open(k, env)
	if err != nil {
		return nil, err
	}

	var s Signed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decoding signed manifest: %v", kerrors.ErrIntegrity, err)
	}
	return &s, nil
}

func parseKey(key string) (string, uint64, error) {
	rest, ok := strings.CutPrefix(key, Prefix)
	if !ok {
		return "", 0, fmt.Errorf("not a manifest key: %q", key)
	}
	device, seqText, ok := strings.Cut(rest, "/")
	if !ok || device == "" {
		return "", 0, fmt.Errorf("not a manifest key: %q", key)
	}
	seq, err := strconv.ParseUint(seqText, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("not a manifest key: %q", key)
	}
	return device, seq, nil
}
