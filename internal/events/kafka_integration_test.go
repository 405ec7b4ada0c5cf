//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"guildledger/internal/platform/kafka"
	"guildledger/pkg/domain"
	"guildledger/pkg/testutil/containers"
)

func TestKafkaPublisherAgainstBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rp := containers.NewRedpandaContainer(t)
	const topic = "guildledger.events.test"

	producer, err := kgo.NewClient(kgo.SeedBrokers(rp.Broker))
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, kadm.NewClient(producer), topic, 1, 1))
	// A second call finds the topic and succeeds.
	require.NoError(t, kafka.EnsureTopic(ctx, kadm.NewClient(producer), topic, 1, 1))

	guild := domain.MustParseAddress("0x00000000000000000000000000000000000000aa")
	event := New(ctx, GuildCreated)
	event.Guild = Addr(guild)
	NewKafkaPublisher(producer, topic).Publish(ctx, event)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, guild.String(), string(records[0].Key))
	var got Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, GuildCreated, got.Type)
}
