package story

// Key layout:
//
//	story/{id}/meta   -> JSON Meta
//	story/{id}/draft  -> draft content bytes
//	unread/{userID}   -> 8-byte big-endian counter

var (
	storyPrefix  = []byte("story/")
	unreadPrefix = []byte("unread/")
)

func metaKey(id string) []byte {
	b := make([]byte, 0, len(storyPrefix)+len(id)+5)
	b = append(b, storyPrefix...)
	b = append(b, id...)
	b = append(b, '/', 'm', 'e', 't', 'a')
	return b
}

func draftKey(id string) []byte {
	b := make([]byte, 0, len(storyPrefix)+len(id)+6)
	b = append(b, storyPrefix...)
	b = append(b, id...)
	b = append(b, '/', 'd', 'r', 'a', 'f', 't')
	return b
}

func unreadKey(userID string) []byte {
	b := make([]byte, 0, len(unreadPrefix)+len(userID))
	b = append(b, unreadPrefix...)
	b = append(b, userID...)
	return b
}
