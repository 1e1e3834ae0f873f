package upstream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedulesFixture = `{
  "data": {
    "regularSchedules": {"nodes": [
      {
        "startTime": "2023-06-15T16:00:00Z",
        "endTime": "2023-06-15T18:00:00Z",
        "regularMatchSetting": {
          "__isVsSetting": "RegularMatchSetting",
          "vsStages": [
            {"id": "VnNTdGFnZS0xNA==", "vsStageId": 14, "name": "Sturgeon Shipyard"},
            {"id": "VnNTdGFnZS0xOA==", "vsStageId": 18, "name": "Manta Maria"}
          ],
          "vsRule": {"id": "VnNSdWxlLTA=", "rule": "TURF_WAR", "name": "Turf War"}
        }
      }
    ]},
    "bankaraSchedules": {"nodes": [
      {
        "startTime": "2023-06-15T16:00:00Z",
        "endTime": "2023-06-15T18:00:00Z",
        "bankaraMatchSettings": [
          {
            "vsStages": [{"id": "a", "vsStageId": 1, "name": "Scorch Gorge"}],
            "vsRule": {"id": "VnNSdWxlLTI=", "rule": "LOFT", "name": "Tower Control"},
            "bankaraMode": "CHALLENGE"
          },
          {
            "vsStages": [{"id": "b", "vsStageId": 2, "name": "Eeltail Alley"}],
            "vsRule": {"id": "VnNSdWxlLTQ=", "rule": "CLAM", "name": "Clam Blitz"},
            "bankaraMode": "OPEN"
          }
        ]
      },
      {
        "startTime": "2023-06-15T18:00:00Z",
        "endTime": "2023-06-15T20:00:00Z",
        "bankaraMatchSettings": null
      }
    ]},
    "xSchedules": {"nodes": []},
    "eventSchedules": {"nodes": [
      {
        "leagueMatchSetting": {
          "leagueMatchEvent": {"id": "xyz", "name": "Monthly Challenge"},
          "vsStages": [{"id": "c", "vsStageId": 3, "name": "Hagglefish Market"}],
          "vsRule": {"id": "VnNSdWxlLTE=", "rule": "AREA", "name": "Splat Zones"}
        },
        "timePeriods": [
          {"startTime": "2023-06-16T00:00:00Z", "endTime": "2023-06-16T02:00:00Z"},
          {"startTime": "2023-06-16T04:00:00Z", "endTime": "2023-06-16T06:00:00Z"}
        ]
      }
    ]},
    "festSchedules": {"nodes": []},
    "coopGroupingSchedule": {
      "bannerImage": null,
      "regularSchedules": {"nodes": [
        {
          "startTime": "2023-06-15T08:00:00Z",
          "endTime": "2023-06-17T00:00:00Z",
          "setting": {
            "coopStage": {"id": "Q29vcFN0YWdlLTI=", "name": "Sockeye Station"},
            "weapons": [
              {"__splatoon3ink_id": "49171e6de78e50c7", "name": "Splattershot Jr."},
              {"__splatoon3ink_id": "09465cbd66e15c68", "name": "Splat Dualies"}
            ]
          },
          "__splatoon3ink_king_salmonid_guess": "Cohozuna"
        }
      ]}
    },
    "vsStages": {"nodes": []}
  }
}`

func TestDecodeSchedules(t *testing.T) {
	var resp SchedulesResponse
	require.NoError(t, json.Unmarshal([]byte(schedulesFixture), &resp))

	reg := resp.Data.RegularSchedules.Nodes
	require.Len(t, reg, 1)
	require.NotNil(t, reg[0].RegularMatchSetting)
	assert.Equal(t, time.Date(2023, 6, 15, 16, 0, 0, 0, time.UTC), reg[0].StartTime.Time)
	assert.Equal(t, "VnNSdWxlLTA=", reg[0].RegularMatchSetting.VsRule.ID)
	assert.Equal(t, 14, reg[0].RegularMatchSetting.VsStages[0].VsStageID)

	bankara := resp.Data.BankaraSchedules.Nodes
	require.Len(t, bankara, 2)
	require.Len(t, bankara[0].BankaraMatchSettings, 2)
	assert.Equal(t, "VnNSdWxlLTI=", bankara[0].BankaraMatchSettings[0].VsRule.ID)
	// null settings tuple decodes to nil, not an error
	assert.Nil(t, bankara[1].BankaraMatchSettings)

	events := resp.Data.EventSchedules.Nodes
	require.Len(t, events, 1)
	assert.Len(t, events[0].TimePeriods, 2)
	assert.Equal(t, "VnNSdWxlLTE=", events[0].LeagueMatchSetting.VsRule.ID)

	coop := resp.Data.CoopSchedule.RegularSchedules.Nodes
	require.Len(t, coop, 1)
	assert.Equal(t, "Q29vcFN0YWdlLTI=", coop[0].Setting.CoopStage.ID)
	assert.Equal(t, "Cohozuna", coop[0].KingGuess)
	assert.Equal(t, "49171e6de78e50c7", coop[0].Setting.Weapons[0].SourceID)
}

const gearFixture = `{
  "data": {
    "gesotown": {
      "pickupBrand": {
        "image": {"url": "https://example.invalid/brand.png"},
        "brand": {"id": "QnJhbmQtMTc=", "name": "Toni Kensa"},
        "saleEndTime": "2023-06-16T00:00:00Z",
        "brandGears": [
          {
            "id": "U2FsZUdlYXItMF8xNjg2Nzg3MjAwXzA=",
            "saleEndTime": "2023-06-16T00:00:00Z",
            "price": 8000,
            "gear": {
              "__splatoon3ink_id": "8a06264363dc442e",
              "__typename": "HeadGear",
              "name": "Squidbeak Shield",
              "brand": {"id": "QnJhbmQtMTc=", "name": "Toni Kensa"},
              "primaryGearPower": {"__splatoon3ink_id": "1d855c39cfd4d1ad", "name": "Sub Resistance Up"},
              "additionalGearPowers": [
                {"__splatoon3ink_id": "cef7771e1562e6f9", "name": "Unknown"},
                {"__splatoon3ink_id": "cef7771e1562e6f9", "name": "Unknown"}
              ]
            }
          }
        ],
        "nextBrand": {"id": "QnJhbmQtMg==", "name": "Zekko"}
      },
      "limitedGears": [
        {
          "id": "bGltaXRlZDE=",
          "saleEndTime": "2023-06-15T12:00:00+09:00",
          "price": 2500,
          "gear": {
            "__splatoon3ink_id": "deadbeef00000000",
            "__typename": "ShoesGear",
            "name": "Blue Lo-Tops",
            "brand": {"id": "QnJhbmQtMw==", "name": "Zink"},
            "primaryGearPower": {"__splatoon3ink_id": "feedface00000000", "name": "Run Speed Up"},
            "additionalGearPowers": []
          }
        }
      ]
    }
  }
}`

func TestDecodeGear(t *testing.T) {
	var resp GearResponse
	require.NoError(t, json.Unmarshal([]byte(gearFixture), &resp))

	brand := resp.Data.Gesotown.PickupBrand
	assert.Equal(t, time.Date(2023, 6, 16, 0, 0, 0, 0, time.UTC), brand.SaleEndTime.Time)
	require.Len(t, brand.BrandGears, 1)
	assert.Equal(t, "HeadGear", brand.BrandGears[0].Gear.TypeName)
	assert.Equal(t, 8000, brand.BrandGears[0].Price)
	assert.Len(t, brand.BrandGears[0].Gear.AdditionalPowers, 2)

	limited := resp.Data.Gesotown.LimitedGears
	require.Len(t, limited, 1)
	// offsets normalize to UTC
	assert.Equal(t, time.Date(2023, 6, 15, 3, 0, 0, 0, time.UTC), limited[0].SaleEndTime.Time)
}

func TestInstantRejectsGarbage(t *testing.T) {
	var i Instant
	assert.Error(t, i.UnmarshalJSON([]byte(`"next tuesday"`)))
	assert.NoError(t, i.UnmarshalJSON([]byte(`"2024-01-02T03:04:05Z"`)))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), i.Time)
}
