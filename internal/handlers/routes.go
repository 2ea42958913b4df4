package handlers

import "github.com/gin-gonic/gin"

// API groups the REST handlers mounted behind authentication.
type API struct {
	Rooms       *RoomHandler
	Messages    *MessageHandler
	Connections *ConnectionHandler
	Presence    *PresenceHandler
	Users       *UserHandler
}

// Register mounts every authenticated route on router.
func Register(router gin.IRouter, api API, authMiddleware gin.HandlerFunc) {
	g := router.Group("", authMiddleware)

	g.GET("/rooms", api.Rooms.ListRooms)
	g.POST("/rooms", api.Rooms.CreateGroup)
	g.POST("/rooms/direct", api.Rooms.OpenDirect)
	g.GET("/rooms/:room_id", api.Rooms.GetRoom)
	g.POST("/rooms/:room_id/read", api.Rooms.MarkRead)
	g.POST("/rooms/:room_id/members", api.Rooms.AddMembers)

	g.GET("/rooms/:room_id/messages", api.Messages.ListMessages)
	g.POST("/rooms/:room_id/messages", api.Messages.PostMessage)
	g.GET("/rooms/:room_id/messages/:message_id", api.Messages.GetMessage)
	g.PATCH("/rooms/:room_id/messages/:message_id", api.Messages.EditMessage)

	g.GET("/connections", api.Connections.ListConnections)
	g.POST("/connections", api.Connections.SendRequest)
	g.GET("/connections/status/:user_id", api.Connections.Status)
	g.POST("/connections/:connection_id/respond", api.Connections.Respond)
	g.DELETE("/connections/:connection_id", api.Connections.Cancel)

	g.PUT("/presence", api.Presence.SetStatus)
	g.POST("/presence/heartbeat", api.Presence.Heartbeat)
	g.GET("/presence/:user_id", api.Presence.GetPresence)

	g.GET("/users/search", api.Users.Search)
}
