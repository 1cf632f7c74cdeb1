package engine

import "net/url"

// trackerTier is announced with every magnet so fresh swarms resolve fast
// even when the DHT is cold.
var trackerTier = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.tracker.cl:1337/announce",
	"udp://9.rarbg.com:2810/announce",
	"udp://tracker.openbittorrent.com:6969/announce",
	"udp://opentracker.i2p.rocks:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://tracker.tiny-vps.com:6969/announce",
	"udp://tracker.dler.org:6969/announce",
	"udp://open.stealth.si:80/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://explodie.org:6969/announce",
	"udp://ipv4.tracker.harry.lu:80/announce",
	"udp://tracker.moeking.me:6969/announce",
	"udp://tracker.cyberia.is:6969/announce",
	"udp://tracker.birkenwald.de:6969/announce",
	"udp://retracker.lanta-net.ru:2710/announce",
	"udp://bt2.archive.org:6969/announce",
	"udp://bt1.archive.org:6969/announce",
	"http://tracker.openbittorrent.com:80/announce",
	"wss://tracker.btorrent.xyz",
	"wss://tracker.openwebtorrent.com",
	"wss://tracker.webtorrent.dev",
}

// buildMagnet assembles a magnet URI for a validated info-hash with the
// full tracker tier attached.
func buildMagnet(infoHash string) string {
	uri := "magnet:?xt=urn:btih:" + infoHash
	for _, tr := range trackerTier {
		uri += "&tr=" + url.QueryEscape(tr)
	}
	return uri
}
