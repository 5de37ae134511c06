package trb

// ConnectData is the payload for CONNECT.
type ConnectData struct {
	ChannelID int64 `json:"channel_id"`
}

// AddToQueueData is the payload for ADD_TO_QUEUE.
type AddToQueueData struct {
	Query         string `json:"query"`
	RepeatCount   int    `json:"repeat_count"`
	RequesterName string `json:"requester_name"`
}

// RemoveFromQueueData is the payload for REMOVE_FROM_QUEUE.
type RemoveFromQueueData struct {
	SongIndex int `json:"song_index"`
}

// SongData carries track information in events and state payloads.
// AudioURL is the resolved stream locator; it is empty while a track
// still awaits background resolution.
type SongData struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Duration      int    `json:"duration"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	WebpageURL    string `json:"webpage_url,omitempty"`
	Channel       string `json:"channel,omitempty"`
	ViewCount     int64  `json:"view_count,omitempty"`
	RequesterName string `json:"requester_name"`
	AudioURL      string `json:"audio_url,omitempty"`
}

// StateData is the full player state for GET_STATE and STATE_UPDATE.
type StateData struct {
	CurrentSong *SongData  `json:"current_song"`
	Queue       []SongData `json:"queue"`
	IsPlaying   bool       `json:"is_playing"`
	IsConnected bool       `json:"is_connected"`
	ChannelID   int64      `json:"channel_id,omitempty"`
	LoopSong    *SongData  `json:"loop_song,omitempty"`
}

// ErrorData is the payload for PLAYER_ERROR.
type ErrorData struct {
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	SongData     *SongData `json:"song_data,omitempty"`
}

// AddedData is the success payload for ADD_TO_QUEUE.
type AddedData struct {
	Status     string `json:"status"`
	SongsAdded int    `json:"songs_added"`
	SongTitle  string `json:"song_title"`
	QueueSize  int    `json:"queue_size"`
}

// SkippedData is the success payload for SKIP_SONG.
type SkippedData struct {
	Status    string `json:"status"`
	SongTitle string `json:"song_title,omitempty"`
}

// RemovedData is the success payload for REMOVE_FROM_QUEUE.
type RemovedData struct {
	Status    string `json:"status"`
	SongTitle string `json:"song_title,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

// StatusData is a bare status payload for commands without richer
// results (CONNECT, DISCONNECT, RESET_PLAYER, LOOP_TRACK).
type StatusData struct {
	Status    string `json:"status"`
	ChannelID int64  `json:"channel_id,omitempty"`
	SongTitle string `json:"song_title,omitempty"`
}

// StateReplyData wraps StateData for the GET_STATE reply.
type StateReplyData struct {
	Status string    `json:"status"`
	State  StateData `json:"state"`
}

// QueueUpdatedData is the payload for QUEUE_UPDATED.
type QueueUpdatedData struct {
	Queue []SongData `json:"queue"`
}
