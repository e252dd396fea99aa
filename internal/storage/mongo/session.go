package mongo

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
)

// DialConfig holds the shared connection settings for the document store.
type DialConfig struct {
	URI      string        `yaml:"uri"` // takes precedence over the host fields
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DialInfo converts cfg into mgo dial parameters.
func (cfg DialConfig) DialInfo() (*mgo.DialInfo, error) {
	var info *mgo.DialInfo
	if cfg.URI != "" {
		parsed, err := mgo.ParseURL(cfg.URI)
		if err != nil {
			return nil, errors.Annotate(err, "parse mongo uri")
		}
		info = parsed
	} else {
		if cfg.Host == "" {
			return nil, errors.NotValidf("mongo host")
		}
		port := cfg.Port
		if port == 0 {
			port = 27017
		}
		info = &mgo.DialInfo{
			Addrs:    []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))},
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.Timeout > 0 {
		info.Timeout = cfg.Timeout
	}
	return info, nil
}

// SessionOpener implements Opener by copying a root mgo session per operation.
type SessionOpener struct {
	root *mgo.Session
}

// Dial connects to the document store.
func Dial(cfg DialConfig) (*SessionOpener, error) {
	info, err := cfg.DialInfo()
	if err != nil {
		return nil, errors.Trace(err)
	}
	session, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, errors.Annotatef(err, "dial mongo %v", info.Addrs)
	}
	if cfg.Timeout > 0 {
		session.SetSocketTimeout(cfg.Timeout)
	}
	return &SessionOpener{root: session}, nil
}

// Open returns a collection on a copied session.
func (o *SessionOpener) Open(db, coll string) (Collection, func()) {
	session := o.root.Copy()
	return &sessionCollection{c: session.DB(db).C(coll)}, session.Close
}

// Close closes the root session.
func (o *SessionOpener) Close() {
	o.root.Close()
}

type sessionCollection struct {
	c *mgo.Collection
}

func (s *sessionCollection) FindOne(selector bson.M) (bson.M, error) {
	var doc bson.M
	if err := s.c.Find(selector).One(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *sessionCollection) FindField(selector bson.M, field string, limit int) ([]string, error) {
	iter := s.c.Find(selector).Select(bson.M{field: 1, "_id": 0}).Limit(limit).Iter()
	var (
		doc    bson.M
		values []string
	)
	for iter.Next(&doc) {
		if v, ok := doc[field]; ok {
			values = append(values, fmt.Sprint(v))
		}
		doc = nil
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *sessionCollection) Upsert(selector bson.M, doc bson.M) (*mgo.ChangeInfo, error) {
	return s.c.Upsert(selector, doc)
}

func (s *sessionCollection) Remove(selector bson.M) error {
	return s.c.Remove(selector)
}
