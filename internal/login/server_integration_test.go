package login

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/udisondev/gunnet/internal/auth"
	"github.com/udisondev/gunnet/internal/config"
	"github.com/udisondev/gunnet/internal/crypto"
	"github.com/udisondev/gunnet/internal/db"
	"github.com/udisondev/gunnet/internal/network"
	"github.com/udisondev/gunnet/internal/protocol"
	"github.com/udisondev/gunnet/internal/testutil"
)

// LoginServerSuite runs the login handler behind a real TCP server and PostgreSQL.
type LoginServerSuite struct {
	suite.Suite

	repo   *db.PostgresAccountRepository
	codec  *auth.Codec
	frames *protocol.Codec
	server *network.Server
	addr   string
}

func TestLoginServerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LoginServerSuite))
}

func (s *LoginServerSuite) SetupSuite() {
	ctx := context.Background()

	// DB_ADDR points at an existing database (CI); otherwise start a container.
	dsn := os.Getenv("DB_ADDR")
	if dsn == "" {
		dsn, _ = testutil.SetupTestDB(s.T())
	}
	s.Require().NoError(db.RunMigrations(ctx, dsn))

	database, err := db.New(ctx, dsn)
	s.Require().NoError(err)
	s.T().Cleanup(database.Close)
	s.repo = db.NewPostgresAccountRepository(database.Pool())

	cfg := config.Default()
	cfg.BindAddress = "127.0.0.1"
	cfg.FloodProtection = false

	handshake, err := cfg.Crypto.Handshake()
	s.Require().NoError(err)
	s.codec, err = auth.NewCodec(handshake)
	s.Require().NoError(err)

	s.server, err = network.NewServer(cfg, NewHandler(s.codec, s.repo))
	s.Require().NoError(err)
	s.frames = s.server.Codec()

	listener, addr := testutil.ListenTCP(s.T())
	s.addr = addr

	ctx, cancel := context.WithCancel(ctx)
	s.T().Cleanup(cancel)
	go func() {
		_ = s.server.Serve(ctx, listener)
	}()

	s.Require().NoError(testutil.WaitForTCPReady(s.addr, 5*time.Second))
}

func (s *LoginServerSuite) login(username, password string, material []byte) LoginResult {
	conn, err := net.DialTimeout("tcp", s.addr, time.Second)
	s.Require().NoError(err)
	defer conn.Close()
	s.Require().NoError(conn.SetDeadline(time.Now().Add(5 * time.Second)))

	body, err := s.codec.Encode(auth.Credentials{
		Role:     auth.RoleLogin,
		Username: username,
		Magic:    0x0badf00d,
		Password: password,
		Version:  1,
	}, material)
	s.Require().NoError(err)
	s.Require().NoError(protocol.WritePacket(conn, s.frames, crypto.Header{ID: OpcodeLoginRequest}, body))

	pkt, err := protocol.ReadPacket(conn, s.frames)
	s.Require().NoError(err)
	s.Require().Equal(OpcodeLoginResult, pkt.Header.ID)

	res, err := ParseLoginResult(pkt.Body)
	s.Require().NoError(err)
	return res
}

func (s *LoginServerSuite) TestStoredAccount() {
	ctx := context.Background()
	_, err := s.repo.GetOrCreateAccount(ctx, "suite_user", db.HashPassword("pw1"), "")
	s.Require().NoError(err)

	sum := crypto.Hash([]byte("pw1"))
	s.Equal(StatusAccepted, s.login("suite_user", "pw1", sum[:]).Status)

	acc, err := s.repo.GetAccount(ctx, "suite_user")
	s.Require().NoError(err)
	s.Equal("127.0.0.1", acc.LastIP)
}

func (s *LoginServerSuite) TestWrongPassword() {
	_, err := s.repo.GetOrCreateAccount(context.Background(), "suite_wrong", db.HashPassword("right"), "")
	s.Require().NoError(err)

	sum := crypto.Hash([]byte("right"))
	s.Equal(StatusRejected, s.login("suite_wrong", "wrong", sum[:]).Status)
}

func (s *LoginServerSuite) TestUnknownAccount() {
	sum := crypto.Hash([]byte("pw"))
	s.Equal(StatusRejected, s.login("suite_ghost", "pw", sum[:]).Status)
}
