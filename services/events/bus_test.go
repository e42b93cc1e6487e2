package eventsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	emailsvc "github.com/gurudigital/pelangi/services/email"
	eventsvc "github.com/gurudigital/pelangi/services/events"
	"github.com/gurudigital/pelangi/testutil"
)

func TestBus_LevelUpEmail(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Server.ShutdownTimeout = time.Second
	logger := testutil.Logger{T: t}
	core.ParseEmailTemplates(conf, logger)
	mailer := emailsvc.NewConsoleServiceMock(conf, logger)

	bus, err := eventsvc.NewBus(conf, logger, nil)
	require.NoError(t, err)
	bus.HandleLevelUp(mailer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	defer bus.Close()
	<-bus.Running()

	ctx = context.Background()
	require.NoError(t, bus.NotifyLevelUp(ctx, gamification.LevelUp{
		StudentID: "s-1", FullName: "Budi", Email: "budi@sekolah.id", PreviousLevel: 1, Level: 2, LevelName: "Berkembang", TotalXp: 120,
	}))
	// no email address, no email
	require.NoError(t, bus.NotifyLevelUp(ctx, gamification.LevelUp{StudentID: "s-2", FullName: "Ani", Level: 3, LevelName: "Mahir"}))

	assert.Eventually(t, func() bool { return len(mailer.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "budi@sekolah.id", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Berkembang")
}
