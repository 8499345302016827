package shared

const (
	CLIENT_VERSION = "1.4.2"

	MEDIA_TYPE_IMAGE  = "image"
	MEDIA_TYPE_VIDEO  = "video"
	MEDIA_TYPE_STREAM = "stream"

	COMMAND_REBOOT        = "reboot"
	COMMAND_UPDATE_CLIENT = "update_client"

	PLAYER_OMXPLAYER = "omxplayer"
	PLAYER_VLC       = "vlc"
	PLAYER_FFPLAY    = "ffplay"

	USER_AGENT = "Marquee/" + CLIENT_VERSION + " <github.com/lumenview/marquee>"
)
