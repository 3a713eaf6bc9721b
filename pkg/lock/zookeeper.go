package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"example.com/reservation-order/pkg/logger"
)

// zkConn — подмножество *zk.Conn, которое нужно блокировке.
type zkConn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Delete(path string, version int32) error
	Exists(path string) (bool, *zk.Stat, error)
}

// ZooKeeperLocker — блокировка на эфемерном узле.
// Узел живёт, пока жива сессия, поэтому ttl не используется: упавший экземпляр
// теряет блокировку по истечении session timeout.
type ZooKeeperLocker struct {
	conn zkConn
	root string
}

// NewZooKeeperLocker создаёт блокировку с узлами под root (например "/locks").
func NewZooKeeperLocker(conn zkConn, root string) *ZooKeeperLocker {
	return &ZooKeeperLocker{conn: conn, root: strings.TrimRight(root, "/")}
}

// ConnectZooKeeper открывает сессию ZooKeeper.
func ConnectZooKeeper(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к ZooKeeper: %w", err)
	}
	return conn, nil
}

// TryAcquire создаёт эфемерный узел {root}/{key}. Узел уже существует — блокировка занята.
func (l *ZooKeeperLocker) TryAcquire(ctx context.Context, key string, _ time.Duration) (Lease, bool, error) {
	if err := l.ensureRoot(); err != nil {
		return nil, false, err
	}

	path := l.root + "/" + key
	token := newToken()

	_, err := l.conn.Create(path, []byte(token), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка создания узла %s: %w", path, err)
	}

	return &zkLease{conn: l.conn, path: path, token: token}, true, nil
}

func (l *ZooKeeperLocker) ensureRoot() error {
	if l.root == "" {
		return nil
	}
	exists, _, err := l.conn.Exists(l.root)
	if err != nil {
		return fmt.Errorf("ошибка проверки узла %s: %w", l.root, err)
	}
	if exists {
		return nil
	}
	_, err = l.conn.Create(l.root, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("ошибка создания узла %s: %w", l.root, err)
	}
	return nil
}

type zkLease struct {
	conn  zkConn
	path  string
	token string
}

// Release удаляет узел, если его данные совпадают с токеном владельца.
func (l *zkLease) Release(ctx context.Context) error {
	data, stat, err := l.conn.Get(l.path)
	if errors.Is(err, zk.ErrNoNode) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка чтения узла %s: %w", l.path, err)
	}

	if string(data) != l.token {
		logger.Ctx(ctx).Warn().Str("path", l.path).Msg("Узел блокировки принадлежит другому владельцу")
		return nil
	}

	if err := l.conn.Delete(l.path, stat.Version); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("ошибка удаления узла %s: %w", l.path, err)
	}
	return nil
}
