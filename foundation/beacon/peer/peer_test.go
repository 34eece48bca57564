package peer_test

import (
	"testing"

	"github.com/pulsebeacon/pulse/foundation/beacon/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host1"}, {Host: "host2"}, {Host: "host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, peer := range tst.peers {
				ps.Add(peer)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			ps.Remove(peer.Peer{Host: "host3"})
			if ps.Count() != len(tst.peers)-1 {
				t.Fatalf("Test %s:\tShould drop a removed peer.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Downgrade(t *testing.T) {
	ps := peer.NewPeerSet()
	pr := peer.New("host1")
	ps.Add(pr)

	// Penalties accumulate. The peer stays until the ban threshold is hit.
	if dropped := ps.Downgrade(pr, 50); dropped {
		t.Fatal("Should keep a peer below the ban threshold.")
	}
	if ps.Count() != 1 {
		t.Fatal("Should still count a downgraded peer.")
	}

	if dropped := ps.Downgrade(pr, 50); !dropped {
		t.Fatal("Should drop a peer reaching the ban threshold.")
	}
	if ps.Count() != 0 {
		t.Fatal("Should not count a banned peer.")
	}
}

func Test_LeastBusy(t *testing.T) {
	ps := peer.NewPeerSet()
	pr1 := peer.New("host1")
	pr2 := peer.New("host2")
	ps.Add(pr1)
	ps.Add(pr2)

	ps.BeginRequest(pr1)
	ps.BeginRequest(pr1)
	ps.BeginRequest(pr2)

	pr, found := ps.LeastBusy("")
	if !found {
		t.Fatal("Should find a least busy peer.")
	}
	if pr != pr2 {
		t.Logf("got: %s", pr.Host)
		t.Logf("exp: %s", pr2.Host)
		t.Fatal("Should pick the peer with the fewest requests in flight.")
	}

	// Excluding our own host must never return ourselves.
	ps.EndRequest(pr2)
	if pr, found := ps.LeastBusy("host2"); found && pr == pr2 {
		t.Fatal("Should never return the excluded host.")
	}
}
