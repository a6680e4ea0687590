package agent

import (
	"bytes"
	"encoding/json"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Layout:
//
//	bucket(v1.services) ->
//			<tap service id> (serviceRecord json)
//	bucket(v1.flows) ->
//			<tap flow id> (flowRecord json)
var (
	bucketKeyStorageVersion = []byte("v1")
	bucketKeyServices       = []byte("services")
	bucketKeyFlows          = []byte("flows")
)

// serviceRecord is what the agent programmed for a tap service on this host.
type serviceRecord struct {
	TaasID    uint32 `json:"taas_id"`
	PortID    string `json:"port_id"`
	VifName   string `json:"vif_name"`
	OFPort    int    `json:"ofport"`
	LocalVLAN int    `json:"local_vlan"`
}

// flowRecord is what the agent programmed for a tap flow on this host.
type flowRecord struct {
	TaasID       uint32        `json:"taas_id"`
	TapServiceID string        `json:"tap_service_id"`
	PortID       string        `json:"port_id"`
	Direction    api.Direction `json:"direction"`
	OFPort       int           `json:"ofport"`
	MAC          string        `json:"mac"`
	LocalVLAN    int           `json:"local_vlan"`
	NetworkType  string        `json:"network_type,omitempty"`
}

type bucketKeyPath [][]byte

func (bk bucketKeyPath) String() string {
	return string(bytes.Join([][]byte(bk), []byte("/")))
}

// InitDB prepares a database for use by the agent.
func InitDB(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		if _, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyServices); err != nil {
			return err
		}
		_, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyFlows)
		return err
	})
}

// getService returns the record of a tap service, or nil.
func getService(tx *bolt.Tx, id string) (*serviceRecord, error) {
	var r serviceRecord
	ok, err := get(tx, bucketKeyServices, id, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func putService(tx *bolt.Tx, id string, r *serviceRecord) error {
	return put(tx, bucketKeyServices, id, r)
}

func deleteService(tx *bolt.Tx, id string) error {
	return del(tx, bucketKeyServices, id)
}

// servicesByTaasID returns the ids of the local tap services bound to taasID.
func servicesByTaasID(tx *bolt.Tx, taasID uint32) []string {
	var ids []string
	forEach(tx, bucketKeyServices, func(id string, p []byte) {
		var r serviceRecord
		if err := json.Unmarshal(p, &r); err == nil && r.TaasID == taasID {
			ids = append(ids, id)
		}
	})
	return ids
}

func getFlow(tx *bolt.Tx, id string) (*flowRecord, error) {
	var r flowRecord
	ok, err := get(tx, bucketKeyFlows, id, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func putFlow(tx *bolt.Tx, id string, r *flowRecord) error {
	return put(tx, bucketKeyFlows, id, r)
}

func deleteFlow(tx *bolt.Tx, id string) error {
	return del(tx, bucketKeyFlows, id)
}

// flowsByTaasID returns the local tap flows of session taasID.
func flowsByTaasID(tx *bolt.Tx, taasID uint32) map[string]*flowRecord {
	flows := make(map[string]*flowRecord)
	forEach(tx, bucketKeyFlows, func(id string, p []byte) {
		var r flowRecord
		if err := json.Unmarshal(p, &r); err == nil && r.TaasID == taasID {
			flows[id] = &r
		}
	})
	return flows
}

// allFlows returns every tap flow programmed on this host.
func allFlows(tx *bolt.Tx) map[string]*flowRecord {
	flows := make(map[string]*flowRecord)
	forEach(tx, bucketKeyFlows, func(id string, p []byte) {
		var r flowRecord
		if err := json.Unmarshal(p, &r); err != nil {
			log.L.WithError(err).Errorf("skipping corrupt tap flow record %s", id)
			return
		}
		flows[id] = &r
	})
	return flows
}

func get(tx *bolt.Tx, bucket []byte, id string, v interface{}) (bool, error) {
	bkt := getBucket(tx, bucketKeyStorageVersion, bucket)
	if bkt == nil {
		return false, nil
	}
	p := bkt.Get([]byte(id))
	if p == nil {
		return false, nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return false, errors.Wrapf(err, "corrupt record %v/%s", bucketKeyPath{bucketKeyStorageVersion, bucket}, id)
	}
	return true, nil
}

func put(tx *bolt.Tx, bucket []byte, id string, v interface{}) error {
	bkt, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucket)
	if err != nil {
		return err
	}
	p, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bkt.Put([]byte(id), p)
}

func del(tx *bolt.Tx, bucket []byte, id string) error {
	bkt := getBucket(tx, bucketKeyStorageVersion, bucket)
	if bkt == nil {
		return nil
	}
	return bkt.Delete([]byte(id))
}

func forEach(tx *bolt.Tx, bucket []byte, fn func(id string, p []byte)) {
	bkt := getBucket(tx, bucketKeyStorageVersion, bucket)
	if bkt == nil {
		return
	}
	if err := bkt.ForEach(func(k, v []byte) error {
		fn(string(k), v)
		return nil
	}); err != nil {
		log.L.WithError(err).Errorf("error iterating %v", bucketKeyPath{bucketKeyStorageVersion, bucket})
	}
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, err
	}

	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, err
		}
	}

	return bkt, nil
}

func getBucket(tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])

	for _, key := range keys[1:] {
		if bkt == nil {
			log.L.Debugf("getBucket %v, missing at %v", bucketKeyPath(keys), string(key))
			break
		}
		bkt = bkt.Bucket(key)
	}

	return bkt
}
