package clauses

import (
	"hermannm.dev/enumnames"
)

// Which clause a UI control writes to. Dimension controls write to Both, the calculate-by control
// writes to Select.
type Channel uint8

const (
	ChannelSelect Channel = iota + 1
	ChannelGroup
	ChannelBoth
)

var channelNames = enumnames.NewMap(map[Channel]string{
	ChannelSelect: "select",
	ChannelGroup:  "group",
	ChannelBoth:   "both",
})

func (channel Channel) IsValid() bool {
	return channelNames.ContainsEnumValue(channel)
}

func (channel Channel) String() string {
	return channelNames.GetNameOrFallback(channel, "INVALID_CHANNEL")
}

func (channel Channel) MarshalJSON() ([]byte, error) {
	return channelNames.MarshalToNameJSON(channel)
}

func (channel *Channel) UnmarshalJSON(bytes []byte) error {
	return channelNames.UnmarshalFromNameJSON(bytes, channel)
}
