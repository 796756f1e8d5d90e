package deposit

var (
	configKey      = []byte("deposit/config")
	poolKey        = []byte("deposit/pool")
	clientIndexKey = []byte("deposit/clients")
	clientPrefix   = []byte("deposit/client/")
)

func clientKey(addr []byte) []byte {
	buf := make([]byte, len(clientPrefix)+len(addr))
	copy(buf, clientPrefix)
	copy(buf[len(clientPrefix):], addr)
	return buf
}
